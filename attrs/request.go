package attrs

import (
	"reflect"
	"strings"
)

const (
	ObjectNameKey     = "object_name"
	ObjectTypeKey     = "vmdb_object_type"
	RequestBackRefKey = "MiqRequest::miq_request"
)

// BuildRequest merges base with the instance name and references to the
// primary object followed by each context object. A reference is skipped
// when any existing key already ends with its lower-cased field segment, so
// explicitly supplied keys always win. Collection-keyed values holding a
// slice are collapsed to their first element.
func BuildRequest(base Values, instanceName string, primary Object, context ...Object) Values {
	out := base.Clone()
	out[ObjectNameKey] = instanceName

	objects := make([]Object, 0, len(context)+1)
	objects = append(objects, primary)
	objects = append(objects, context...)

	for _, o := range objects {
		if IsNil(o) {
			continue
		}
		key := Key(o, "")
		if hasSuffixKey(out, key) {
			continue
		}
		out[key] = Value(o)
	}

	if !IsNil(primary) {
		if FamilyOf(primary) == FamilyRequest {
			out[RequestBackRefKey] = Value(primary)
		}
		out[ObjectTypeKey] = FieldName(primary)
	}

	for k, v := range out {
		if !IsArrayKey(k) {
			continue
		}
		out[k] = firstElement(v)
	}
	return out
}

func hasSuffixKey(m Values, key string) bool {
	suffix := strings.ToLower(lastSegment(key))
	for k := range m {
		if strings.HasSuffix(k, suffix) {
			return true
		}
	}
	return false
}

func lastSegment(key string) string {
	if i := strings.LastIndex(key, keySep); i >= 0 {
		return key[i+len(keySep):]
	}
	return key
}

func firstElement(v any) any {
	if v == nil {
		return v
	}
	if _, ok := v.([]byte); ok {
		return v
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return v
	}
	if rv.Len() == 0 {
		return nil
	}
	return rv.Index(0).Interface()
}
