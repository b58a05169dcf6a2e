package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Row is a stored record.
type Row struct {
	Seq         int64
	ID          string
	Time        time.Time
	Level       int
	Auto        bool
	Success     *bool // nil when the record had no success field
	ServiceName string
	Message     string
	Function    string // set for auto records
	Fields      string // canonical JSON
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Recent returns the last limit records in arrival order.
//
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) Recent(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, time, level, auto, success, service_name, message, function, fields
		FROM (
			SELECT * FROM records ORDER BY seq DESC LIMIT ?
		)
		ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanRows(rows)
}

// AtLeast returns every record with level >= level in arrival order.
func (s *Store) AtLeast(ctx context.Context, level int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, time, level, auto, success, service_name, message, function, fields
		FROM records
		WHERE level >= ?
		ORDER BY seq ASC
	`, level)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanRows(rows)
}

// Calls returns the auto records of function in arrival order.
func (s *Store) Calls(ctx context.Context, function string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, time, level, auto, success, service_name, message, function, fields
		FROM records
		WHERE function = ?
		ORDER BY seq ASC
	`, function)
	if err != nil {
		return nil, fmt.Errorf("query calls of %s: %w", function, err)
	}
	return scanRows(rows)
}

// Failures returns the last limit records with success=false, oldest first.
func (s *Store) Failures(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, time, level, auto, success, service_name, message, function, fields
		FROM (
			SELECT * FROM records WHERE success = 0 ORDER BY seq DESC LIMIT ?
		)
		ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func scanRow(rows *sql.Rows) (Row, error) {
	var (
		row     Row
		ts      string
		success sql.NullBool
		service sql.NullString
		message sql.NullString
		fn      sql.NullString
	)
	err := rows.Scan(&row.Seq, &row.ID, &ts, &row.Level, &row.Auto, &success, &service, &message, &fn, &row.Fields)
	if err != nil {
		return Row{}, fmt.Errorf("scan record: %w", err)
	}

	row.Time, err = unmarshalTime(ts)
	if err != nil {
		return Row{}, err
	}
	if success.Valid {
		b := success.Bool
		row.Success = &b
	}
	row.ServiceName = service.String
	row.Message = message.String
	row.Function = fn.String
	return row, nil
}
