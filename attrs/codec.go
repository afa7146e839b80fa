package attrs

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-automate"
)

const (
	// Separator joins collection member tokens. Member tokens never contain it.
	Separator = "\x1F"

	arrayPrefix = "Array::"
	keySep      = "::"
)

// Map is the flat attribute map handed to the workflow engine.
type Map map[string]string

// Values is a caller-supplied attribute map before encoding.
type Values map[string]any

// Clone copies a Values map.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Key returns the attribute key for an object reference. An empty
// fieldName falls back to the object's derived field name.
func Key(o Object, fieldName string) string {
	if fieldName == "" {
		fieldName = FieldName(o)
	}
	return ClassToken(o) + keySep + fieldName
}

// Value is the encoded form of an object reference.
func Value(o Object) string {
	return strconv.FormatInt(o.ObjectID(), 10)
}

// ArrayKey prefixes key as a collection attribute.
func ArrayKey(key string) string {
	return arrayPrefix + key
}

// IsArrayKey reports whether key names a collection attribute.
func IsArrayKey(key string) bool {
	return strings.HasPrefix(strings.ToLower(key), strings.ToLower(arrayPrefix))
}

// Encode maps one attribute to its flat key/value form.
func Encode(key string, value any) (string, string) {
	switch v := value.(type) {
	case nil:
		return key, ""
	case Object:
		if IsNil(v) {
			return key, ""
		}
		return Key(v, key), Value(v)
	case []byte:
		return key, string(v)
	}
	if members, ok := collection(value); ok {
		return ArrayKey(key), encodeMembers(members)
	}
	return key, Stringify(value)
}

// EncodeMap encodes every entry of in. An already flat Map passes through
// unchanged and a "k=v&k2=v2" string is parsed. Two entries encoding to the
// same key fail with a duplicate key error.
func EncodeMap(in any) (Map, error) {
	switch m := in.(type) {
	case nil:
		return Map{}, nil
	case Map:
		return m, nil
	case map[string]string:
		return Map(m), nil
	case string:
		return ParseString(m), nil
	case Values:
		return encodeValues(m)
	case map[string]any:
		return encodeValues(Values(m))
	default:
		return nil, automate.Errorf(automate.ErrInvalidAttributes, "unsupported attribute map type %T", in)
	}
}

func encodeValues(in Values) (Map, error) {
	out := make(Map, len(in))
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ek, ev := Encode(k, in[k])
		if _, exists := out[ek]; exists {
			return nil, duplicateKey(ek)
		}
		out[ek] = ev
	}
	return out, nil
}

// String renders m as "k=v&k2=v2" with keys sorted.
func String(m Map) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, "&")
}

// ParseString is the inverse of String.
func ParseString(s string) Map {
	out := Map{}
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		out[k] = v
	}
	return out
}

// SetReferences adds a reference entry for every non-nil object. An
// existing key is never overridden; the collision is an error.
func SetReferences(objects []Object, m Map) (Map, error) {
	if m == nil {
		m = Map{}
	}
	for _, o := range objects {
		if IsNil(o) {
			continue
		}
		key := Key(o, "")
		if _, exists := m[key]; exists {
			return m, duplicateKey(key)
		}
		m[key] = Value(o)
	}
	return m, nil
}

func duplicateKey(key string) error {
	return automate.NewError(
		automate.ErrDuplicateAttributeKey,
		fmt.Sprintf("Key: %s already exists in hash", key),
		nil,
		map[string]any{"key": key},
	)
}

// Stringify renders a scalar attribute value.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

func collection(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []Object:
		out := make([]any, len(v))
		for i, o := range v {
			out[i] = o
		}
		return out, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func encodeMembers(members []any) string {
	tokens := make([]string, 0, len(members))
	for _, m := range members {
		if o, ok := m.(Object); ok && !IsNil(o) {
			tokens = append(tokens, o.ClassName()+keySep+Value(o))
			continue
		}
		tokens = append(tokens, Stringify(m))
	}
	return strings.Join(tokens, Separator)
}

// Token is one decoded collection member.
type Token struct {
	Raw   string
	Ref   Ref
	IsRef bool
}

// DecodeArray splits a collection value into its member tokens, resolving
// "Type::id" members back into references.
func DecodeArray(value string) []Token {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, Separator)
	out := make([]Token, 0, len(parts))
	for _, p := range parts {
		tok := Token{Raw: p}
		if i := strings.LastIndex(p, keySep); i > 0 {
			if n, err := strconv.ParseInt(p[i+len(keySep):], 10, 64); err == nil {
				tok.Ref = Ref{Type: p[:i], ID: n}
				tok.IsRef = true
			}
		}
		out = append(out, tok)
	}
	return out
}
