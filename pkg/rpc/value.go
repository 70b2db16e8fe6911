package rpc

import (
	"encoding/json"
	"fmt"

	uerrors "github.com/vango-dev/uidl/internal/errors"
)

// Type tags of legacy variable values.
const (
	TagString      = "s"
	TagInteger     = "i"
	TagLong        = "l"
	TagFloat       = "f"
	TagDouble      = "d"
	TagBoolean     = "b"
	TagNull        = "n"
	TagConnector   = "p"
	TagStringArray = "S"
	TagArray       = "a"
	TagMap         = "m"
)

// ConnectorRef is a decoded connector reference. It carries the id and is
// resolved against the tracker by the receiving connector.
type ConnectorRef string

// DecodeValue decodes a [tag, value] pair into a Go value:
//
//	s string, i int, l int64, f float32, d float64, b bool, n nil,
//	p ConnectorRef, S []string, a []any, m map[string]any
//
// Arrays and maps hold tagged values themselves.
func DecodeValue(raw json.RawMessage) (any, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, malformedValue(err)
	}
	if len(pair) != 2 {
		return nil, malformedValue(fmt.Errorf("expected [tag, value], got %d elements", len(pair)))
	}
	var tag string
	if err := json.Unmarshal(pair[0], &tag); err != nil {
		return nil, malformedValue(err)
	}
	v := pair[1]

	switch tag {
	case TagString:
		return decodeAs[string](v)
	case TagInteger:
		return decodeAs[int](v)
	case TagLong:
		return decodeAs[int64](v)
	case TagFloat:
		return decodeAs[float32](v)
	case TagDouble:
		return decodeAs[float64](v)
	case TagBoolean:
		return decodeAs[bool](v)
	case TagNull:
		return nil, nil
	case TagConnector:
		var id *string
		if err := json.Unmarshal(v, &id); err != nil {
			return nil, malformedValue(err)
		}
		if id == nil {
			return nil, nil
		}
		return ConnectorRef(*id), nil
	case TagStringArray:
		return decodeAs[[]string](v)
	case TagArray:
		var items []json.RawMessage
		if err := json.Unmarshal(v, &items); err != nil {
			return nil, malformedValue(err)
		}
		out := make([]any, len(items))
		for i, item := range items {
			d, err := DecodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	case TagMap:
		var items map[string]json.RawMessage
		if err := json.Unmarshal(v, &items); err != nil {
			return nil, malformedValue(err)
		}
		out := make(map[string]any, len(items))
		for k, item := range items {
			d, err := DecodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	default:
		return nil, malformedValue(fmt.Errorf("unknown type tag %q", tag))
	}
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, malformedValue(err)
	}
	return v, nil
}

func malformedValue(err error) error {
	return uerrors.New("U012").Wrap(err)
}
