package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("ledger: not found")
	ErrInvalidCredentials = errors.New("ledger: invalid username or password")
	ErrUserExists         = errors.New("ledger: user already exists")
	ErrInvalidLC          = errors.New("ledger: invalid LC")
	ErrUnknownStatus      = errors.New("ledger: unknown status field")
	ErrDocumentNotFound   = errors.New("ledger: document not found")
)

// ValidationError carries field-level problems with an LC payload.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], ", ")))
	}
	return "ledger: invalid LC: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidLC }

// FieldErrors returns the messages keyed by field.
func (e *ValidationError) FieldErrors() map[string][]string { return e.Fields }
