// Package i18n holds translated UI strings loaded from config/locales.
package i18n

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Vars is a map of interpolation variables for translations.
type Vars map[string]any

// DefaultLocale is used when a request carries no locale or the locale has no
// translation for a key.
const DefaultLocale = "en"

type localeKey struct{}

var (
	mu           sync.RWMutex
	translations = make(map[string]map[string]string)
)

// Init loads all locale files from the given directory, replacing anything
// loaded before. A missing directory is not an error.
func Init(localesDir string) error {
	entries, err := os.ReadDir(localesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	loaded := make(map[string]map[string]string)
	for _, f := range entries {
		if f.IsDir() {
			continue
		}
		ext := filepath.Ext(f.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		locale := strings.TrimSuffix(f.Name(), ext)

		data, err := os.ReadFile(filepath.Join(localesDir, f.Name()))
		if err != nil {
			return err
		}
		flat, err := parse(locale, data)
		if err != nil {
			return fmt.Errorf("i18n: %s: %w", f.Name(), err)
		}
		loaded[locale] = flat
	}

	mu.Lock()
	translations = loaded
	mu.Unlock()
	return nil
}

// Load registers translations for one locale from YAML bytes.
func Load(locale string, data []byte) error {
	flat, err := parse(locale, data)
	if err != nil {
		return err
	}
	mu.Lock()
	translations[locale] = flat
	mu.Unlock()
	return nil
}

func parse(locale string, data []byte) (map[string]string, error) {
	var nested map[string]any
	if err := yaml.Unmarshal(data, &nested); err != nil {
		return nil, err
	}
	// Files are optionally nested under the language code: en: { ... }
	if inner, ok := nested[locale].(map[string]any); ok {
		nested = inner
	}
	flat := make(map[string]string)
	flatten(nested, "", flat)
	return flat, nil
}

// WithLocale returns a context carrying locale.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// FromContext returns the locale stored by WithLocale, or DefaultLocale.
func FromContext(ctx context.Context) string {
	if l, ok := ctx.Value(localeKey{}).(string); ok && l != "" {
		return l
	}
	return DefaultLocale
}

// T translates key in the default locale.
func T(key string, vars Vars) string {
	return Translate(DefaultLocale, key, vars)
}

// TCtx translates key in the locale carried by ctx.
func TCtx(ctx context.Context, key string, vars Vars) string {
	return Translate(FromContext(ctx), key, vars)
}

// Translate looks key up in locale, then DefaultLocale. Unknown keys are
// returned unchanged.
func Translate(locale, key string, vars Vars) string {
	mu.RLock()
	val, ok := translations[locale][key]
	if !ok && locale != DefaultLocale {
		val, ok = translations[DefaultLocale][key]
	}
	mu.RUnlock()
	if !ok {
		return key
	}

	for k, v := range vars {
		val = strings.ReplaceAll(val, "%{"+k+"}", fmt.Sprint(v))
	}
	return val
}

// Has reports whether locale has a translation for key.
func Has(locale, key string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := translations[locale][key]
	return ok
}

// AvailableLocales returns all loaded locales, sorted.
func AvailableLocales() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(translations))
	for l := range translations {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Negotiate picks the first available locale named in an Accept-Language
// header, falling back to DefaultLocale.
func Negotiate(acceptLanguage string) string {
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if tag == "" {
			continue
		}
		for _, cand := range []string{tag, strings.SplitN(tag, "-", 2)[0]} {
			mu.RLock()
			_, ok := translations[cand]
			mu.RUnlock()
			if ok {
				return cand
			}
		}
	}
	return DefaultLocale
}

// flatten turns nested maps into dot-notation keys.
func flatten(nested map[string]any, prefix string, out map[string]string) {
	for k, v := range nested {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(val, key, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
