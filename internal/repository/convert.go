package repository

import (
	"fmt"
	"time"
)

// Drivers hand back different Go types for the same column; these helpers normalise them.

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case int16:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("column: want integer, got %T", v)
	}
}

func asString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", fmt.Errorf("column: want text, got %T", v)
	}
}

func asBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("column: want bytes, got %T", v)
	}
}

func asTime(v any) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("column: want timestamp, got %T", v)
	}
	return t, nil
}

func checkWidth(row []any, n int, proc string) error {
	if len(row) < n {
		return fmt.Errorf("%s: row has %d columns, want %d", proc, len(row), n)
	}
	return nil
}
