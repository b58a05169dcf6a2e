package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// EncodeJSON serializes v as canonical JSON: object keys sorted by UTF-16
// code units, no HTML escaping, NFC-normalized strings. Values without a
// JSON form (channels, functions, arbitrary structs) are rendered with %v.
//
// The same value always produces the same bytes, so encoded arguments and
// results can be compared across records.
func EncodeJSON(v any) (JSON, error) {
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, v, 0); err != nil {
		return "", err
	}
	return JSON(buf.String()), nil
}

// Envelope wraps v with its kind: {"type":"int","value":5}.
func Envelope(v any) (JSON, error) {
	body, err := EncodeJSON(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	writeString(&buf, kindOf(v))
	buf.WriteString(`,"value":`)
	buf.WriteString(string(body))
	buf.WriteByte('}')
	return JSON(buf.String()), nil
}

// maxEncodeDepth bounds recursion through self-referencing containers.
const maxEncodeDepth = 64

var errTooDeep = errors.New("value nesting exceeds canonical JSON depth limit")

func kindOf(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "int"
	case float32, float64:
		return "float"
	case time.Time:
		return "time"
	case time.Duration:
		return "duration"
	case JSON, json.RawMessage:
		return "json"
	case error:
		return "error"
	default:
		switch reflect.ValueOf(val).Kind() {
		case reflect.Slice, reflect.Array:
			return "array"
		case reflect.Map, reflect.Struct:
			return "object"
		case reflect.Pointer:
			return "pointer"
		default:
			return reflect.TypeOf(val).String()
		}
	}
}

func encodeCanonical(buf *bytes.Buffer, v any, depth int) error {
	if depth > maxEncodeDepth {
		return errTooDeep
	}
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		writeString(buf, val)
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float32:
		return writeFloat(buf, float64(val), 32)
	case float64:
		return writeFloat(buf, val, 64)
	case time.Time:
		writeString(buf, val.Format(time.RFC3339Nano))
	case time.Duration:
		return writeFloat(buf, val.Seconds(), 64)
	case JSON:
		return writeFragment(buf, []byte(val))
	case json.RawMessage:
		return writeFragment(buf, val)
	case error:
		writeString(buf, val.Error())
	case []any:
		return encodeArray(buf, len(val), func(i int) any { return val[i] }, depth)
	case map[string]any:
		return encodeObject(buf, val, depth)
	default:
		return encodeReflect(buf, val, depth)
	}
	return nil
}

func encodeReflect(buf *bytes.Buffer, v any, depth int) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		fallthrough
	case reflect.Array:
		return encodeArray(buf, rv.Len(), func(i int) any { return rv.Index(i).Interface() }, depth)
	case reflect.Map:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			writeString(buf, fmt.Sprintf("%v", v))
			return nil
		}
		obj := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			obj[iter.Key().String()] = iter.Value().Interface()
		}
		return encodeObject(buf, obj, depth)
	case reflect.Pointer:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		if s, ok := v.(fmt.Stringer); ok {
			writeString(buf, s.String())
			return nil
		}
		return encodeCanonical(buf, rv.Elem().Interface(), depth+1)
	case reflect.String:
		writeString(buf, rv.String())
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		return writeFloat(buf, rv.Float(), 64)
	default:
		if s, ok := v.(fmt.Stringer); ok {
			writeString(buf, s.String())
			return nil
		}
		writeString(buf, fmt.Sprintf("%+v", v))
	}
	return nil
}

func encodeArray(buf *bytes.Buffer, n int, at func(int) any, depth int) error {
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeCanonical(buf, at(i), depth+1); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any, depth int) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		if err := encodeCanonical(buf, obj[k], depth+1); err != nil {
			return fmt.Errorf("[%q]: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64, bits int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("float %v has no JSON form", f)
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, bits))
	return nil
}

func writeFragment(buf *bytes.Buffer, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON fragment")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	buf.Write(compact.Bytes())
	return nil
}

// writeString writes s as a JSON string after NFC normalization, without
// HTML escaping.
func writeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(norm.NFC.String(s))
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
}

// compareUTF16 orders keys by UTF-16 code units, the canonical JSON order.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
