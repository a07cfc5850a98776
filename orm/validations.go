package orm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shaurya/tradeledger/framework/i18n"
)

var validate = validator.New()

// Validate checks the `validate` struct tags of model and returns messages
// keyed by field name, or nil when model is valid.
func Validate(model any) map[string][]string {
	err := validate.Struct(model)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string][]string{"base": {err.Error()}}
	}

	out := make(map[string][]string)
	for _, fe := range verrs {
		field := fe.Field()
		key := "errors.validations." + fe.Tag()
		msg := i18n.T(key, i18n.Vars{
			"field": fieldLabel(field),
			"param": fe.Param(),
		})
		if msg == key {
			msg = fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
		}
		out[field] = append(out[field], msg)
	}
	return out
}

// HandleDBError turns unique-constraint violations on table from PostgreSQL
// or SQLite into field messages. Other errors are reported under "base".
func HandleDBError(table string, err error) map[string][]string {
	if err == nil {
		return nil
	}

	msg := err.Error()
	field := ""
	switch {
	case strings.Contains(msg, "duplicate key value violates unique constraint"):
		// duplicate key value violates unique constraint "ledger_events_event_id_key"
		if parts := strings.Split(msg, "\""); len(parts) >= 2 {
			field = strings.TrimSuffix(strings.TrimPrefix(parts[1], table+"_"), "_key")
		}
	case strings.Contains(msg, "UNIQUE constraint failed:"):
		// UNIQUE constraint failed: ledger_events.event_id
		const marker = "UNIQUE constraint failed:"
		ref := strings.Fields(msg[strings.LastIndex(msg, marker)+len(marker):])
		if len(ref) > 0 {
			field = strings.TrimPrefix(ref[0], table+".")
		}
	}

	if field == "" {
		return map[string][]string{"base": {msg}}
	}
	text := i18n.T("errors.validations.unique", i18n.Vars{
		"field": fieldLabel(field),
	})
	if text == "errors.validations.unique" {
		text = "has already been taken"
	}
	return map[string][]string{field: {text}}
}

func fieldLabel(field string) string {
	key := "models.fields." + field
	if label := i18n.T(key, nil); label != key {
		return label
	}
	return field
}
