package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/plog/internal/record"
)

// timeLayout keeps stored times sortable as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// marshalFields converts every record field to canonical JSON TEXT.
func marshalFields(r *record.Record) (string, error) {
	data, err := record.EncodeJSON(r.Fields())
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// marshalTime formats the record time in UTC; records without time are
// stamped with now.
func marshalTime(r *record.Record, now func() time.Time) string {
	t, ok := r.Time()
	if !ok {
		t = now()
	}
	return t.UTC().Format(timeLayout)
}

func marshalSuccess(r *record.Record) sql.NullBool {
	if !r.Has(record.FieldSuccess) {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: r.Success(), Valid: true}
}

func nullString(r *record.Record, field string) sql.NullString {
	s, ok := r.Value(field).(string)
	if !ok {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func unmarshalTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unmarshal time: %w", err)
	}
	return t, nil
}
