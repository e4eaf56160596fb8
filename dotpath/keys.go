package dotpath

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// NormalizeKeys coerces a key-list argument into a slice of strings. A nil
// input stays nil, a single value becomes a one-element list, and list
// elements are stringified: integers and floats as decimal text, booleans as
// "1"/"0", nil as "", fmt.Stringer values via String(), anything else as its
// JSON encoding.
func NormalizeKeys(input any) []string {
	switch v := input.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, len(v))
		for i, elem := range v {
			out[i] = stringifyKey(elem)
		}
		return out
	default:
		return []string{stringifyKey(input)}
	}
}

func stringifyKey(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(encoded)
	}
}
