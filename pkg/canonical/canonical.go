// Package canonical produces the byte-stable JSON form that receipts are
// hashed over.
//
// The same logical value always serializes to the same bytes:
//   - object keys are sorted by UTF-16 code units (RFC 8785 ordering)
//   - strings are NFC normalized and stripped of trailing whitespace
//   - time.Time values are rendered in UTC with fixed microsecond precision
//   - no insignificant whitespace and no HTML escaping
//   - floats are rejected; integers, bools, strings, null, arrays and objects only
package canonical

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// TimeLayout is the fixed-precision UTC layout used for every timestamp.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in the canonical timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		return encodeString(buf, val)
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical form: %v", val)
	case time.Time:
		return encodeString(buf, FormatTime(val))
	case *time.Time:
		if val == nil {
			buf.WriteString("null")
			return nil
		}
		return encodeString(buf, FormatTime(*val))
	case []byte:
		return encodeString(buf, base64.StdEncoding.EncodeToString(val))
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return encodeArray(buf, arr)
	case []any:
		return encodeArray(buf, val)
	case map[string]string:
		obj := make(map[string]any, len(val))
		for k, s := range val {
			obj[k] = s
		}
		return encodeObject(buf, obj)
	case map[string]any:
		return encodeObject(buf, val)
	case encoding.TextMarshaler:
		text, err := val.MarshalText()
		if err != nil {
			return fmt.Errorf("marshal text %T: %w", v, err)
		}
		return encodeString(buf, string(text))
	default:
		return fmt.Errorf("unsupported type for canonical form: %T", v)
	}
	return nil
}

// NormalizeString applies the string normalization used for every string value.
func NormalizeString(s string) string {
	return strings.TrimRightFunc(norm.NFC.String(s), unicode.IsSpace)
}

func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(NormalizeString(s)); err != nil {
		return err
	}
	// Encoder appends a newline.
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	normalized := make(map[string]any, len(obj))
	for k, v := range obj {
		nk := NormalizeString(k)
		if _, dup := normalized[nk]; dup {
			return fmt.Errorf("duplicate key after normalization: %q", nk)
		}
		normalized[nk] = v
	}

	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessUTF16(keys[i], keys[j]) })

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := encode(buf, normalized[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}
