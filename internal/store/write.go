package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/plog/internal/record"
)

// WriteRecord inserts r and returns its assigned id.
func (s *Store) WriteRecord(ctx context.Context, r *record.Record) (string, error) {
	fieldsJSON, err := marshalFields(r)
	if err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records
		(id, time, level, auto, success, service_name, message, function, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id.String(),
		marshalTime(r, time.Now),
		r.Level(),
		r.Auto(),
		marshalSuccess(r),
		nullString(r, record.FieldServiceName),
		nullString(r, record.FieldMessage),
		nullString(r, record.FieldFunction),
		fieldsJSON,
	)
	if err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}

	return id.String(), nil
}

// Handle makes the store a record handler.
func (s *Store) Handle(r *record.Record) error {
	_, err := s.WriteRecord(context.Background(), r)
	return err
}
