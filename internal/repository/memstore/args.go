package memstore

import "fmt"

type args []any

func (a args) at(i int) (any, error) {
	if i >= len(a) {
		return nil, fmt.Errorf("missing argument %d", i+1)
	}
	return a[i], nil
}

func (a args) num(i int) (int64, error) {
	v, err := a.at(i)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("argument %d: want integer, got %T", i+1, v)
	}
}

func (a args) text(i int) (string, error) {
	v, err := a.at(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %d: want string, got %T", i+1, v)
	}
	return s, nil
}

func (a args) blob(i int) ([]byte, error) {
	v, err := a.at(i)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []byte:
		return x, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("argument %d: want bytes, got %T", i+1, v)
	}
}
