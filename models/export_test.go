package models

import "context"

// ExecRaw runs SQL directly against the store, bypassing the write gateway.
// Tests use it to break the schema underneath the gateway.
func ExecRaw(s *Store, query string, args ...any) error {
	_, err := s.db.ExecContext(context.Background(), query, args...)
	return err
}

// CountRaw returns the result of a count query.
func CountRaw(s *Store, query string, args ...any) (int, error) {
	var n int
	err := s.db.QueryRowContext(context.Background(), query, args...).Scan(&n)
	return n, err
}
