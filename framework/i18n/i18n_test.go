package i18n

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const enYAML = `
en:
  status:
    Created: Created
  auth:
    registered: "Enroll ID: %{id}"
`

const frYAML = `
status:
  Created: Créée
`

func TestInitAndTranslate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.yaml"), []byte(enYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fr.yml"), []byte(frYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("skip"), 0o644))
	require.NoError(t, Init(dir))

	assert.Equal(t, []string{"en", "fr"}, AvailableLocales())
	assert.Equal(t, "Created", T("status.Created", nil))
	assert.Equal(t, "Créée", Translate("fr", "status.Created", nil))
	assert.Equal(t, "Enroll ID: bob", Translate("fr", "auth.registered", Vars{"id": "bob"}))
	assert.Equal(t, "missing.key", T("missing.key", nil))
	assert.True(t, Has("en", "auth.registered"))
	assert.False(t, Has("fr", "auth.registered"))
}

func TestInitMissingDir(t *testing.T) {
	assert.NoError(t, Init(filepath.Join(t.TempDir(), "nope")))
}

func TestContextLocale(t *testing.T) {
	require.NoError(t, Load("en", []byte(enYAML)))
	require.NoError(t, Load("fr", []byte(frYAML)))

	ctx := context.Background()
	assert.Equal(t, DefaultLocale, FromContext(ctx))
	ctx = WithLocale(ctx, "fr")
	assert.Equal(t, "fr", FromContext(ctx))
	assert.Equal(t, "Créée", TCtx(ctx, "status.Created", nil))
}

func TestNegotiate(t *testing.T) {
	require.NoError(t, Load("en", []byte(enYAML)))
	require.NoError(t, Load("fr", []byte(frYAML)))

	assert.Equal(t, "fr", Negotiate("fr-CA,fr;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", Negotiate("de-DE,en;q=0.5"))
	assert.Equal(t, DefaultLocale, Negotiate(""))
}
