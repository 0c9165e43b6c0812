package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rohanthewiz/serr"
)

// Row is one record of a tracked table keyed by column name.
type Row map[string]any

// ID returns the row's primary key, or "" when absent.
func (r Row) ID() string {
	id, _ := r["id"].(string)
	return id
}

// NormalizeValue coerces v to the canonical Go representation for the column
// type: string for text and UUIDs (canonical lowercase form), int64,
// bool, UTC time.Time with microsecond precision, or nil.
// It accepts what database drivers and wire decoders commonly produce.
func NormalizeValue(c Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch c.Type {
	case ColUUID:
		return normalizeUUID(v)
	case ColInt:
		return normalizeInt(v)
	case ColBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
	case ColTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Truncate(time.Microsecond), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, serr.Wrap(err, "invalid timestamp for column "+c.Name)
			}
			return parsed.UTC().Truncate(time.Microsecond), nil
		}
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	}

	return nil, serr.New(fmt.Sprintf("column %s (%s): unsupported value of type %T", c.Name, c.Type, v))
}

func normalizeUUID(v any) (any, error) {
	switch id := v.(type) {
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, serr.Wrap(err, "invalid uuid "+id)
		}
		return parsed.String(), nil
	case uuid.UUID:
		return id.String(), nil
	case [16]byte:
		return uuid.UUID(id).String(), nil
	case []byte:
		parsed, err := uuid.FromBytes(id)
		if err != nil {
			return nil, serr.Wrap(err, "invalid uuid bytes")
		}
		return parsed.String(), nil
	}
	return nil, serr.New(fmt.Sprintf("unsupported uuid value of type %T", v))
}

func normalizeInt(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, serr.New("integer overflow")
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, serr.New(fmt.Sprintf("non-integral value %v", n))
		}
		return int64(n), nil
	}
	return nil, serr.New(fmt.Sprintf("unsupported integer value of type %T", v))
}

// NewID returns a fresh row identifier.
func NewID() string {
	return uuid.NewString()
}
