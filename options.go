package automate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	DefaultInstanceName    = "AUTOMATION"
	EventInstanceName      = "EVENT"
	ResultFormatIgnore     = "ignore"
	DefaultResultOnSuccess = "Ok"
)

// DeliveryOptions is the per-attempt state of one automation request. It is
// also the queue payload, so a requeued attempt re-enters delivery with
// exactly what was shipped here.
type DeliveryOptions struct {
	InstanceName string         `json:"instance_name,omitempty"`
	Attrs        map[string]any `json:"attrs,omitempty"`
	UserID       int64          `json:"user_id,omitempty"`
	GroupID      int64          `json:"miq_group_id,omitempty"`
	ObjectType   string         `json:"object_type,omitempty"`
	ObjectID     int64          `json:"object_id,omitempty"`

	State         string `json:"state,omitempty"`
	FSMStarted    string `json:"ae_fsm_started,omitempty"`
	StateStarted  string `json:"ae_state_started,omitempty"`
	StateRetries  string `json:"ae_state_retries,omitempty"`
	StateData     string `json:"ae_state_data,omitempty"`
	StatePrevious string `json:"ae_state_previous,omitempty"`

	ClassName   string `json:"class_name,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	FQClassName string `json:"fqclass_name,omitempty"`
	Message     string `json:"automate_message,omitempty"`

	ResultFormat    string `json:"result_format,omitempty"`
	ResultOnSuccess string `json:"result_on_success,omitempty"`
	TaskID          int64  `json:"open_url_task_id,omitempty"`
}

// Normalize applies the delivery defaults.
func (o DeliveryOptions) Normalize() DeliveryOptions {
	if strings.TrimSpace(o.InstanceName) == "" {
		o.InstanceName = DefaultInstanceName
	}
	if o.Attrs == nil {
		o.Attrs = map[string]any{}
	}
	return o
}

// Clone returns a copy that does not share the attribute map.
func (o DeliveryOptions) Clone() DeliveryOptions {
	cp := o
	if o.Attrs != nil {
		cp.Attrs = make(map[string]any, len(o.Attrs))
		for k, v := range o.Attrs {
			cp.Attrs[k] = v
		}
	}
	return cp
}

// ObjectName is the "type.id" label used in delivery log lines.
func (o DeliveryOptions) ObjectName() string {
	if o.ObjectType == "" {
		return "."
	}
	return fmt.Sprintf("%s.%d", o.ObjectType, o.ObjectID)
}

// EncodeOptions serializes options into a queue payload.
func EncodeOptions(o DeliveryOptions) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, NewError(ErrInvalidPayload, "encode delivery options", err, nil)
	}
	return data, nil
}

// DecodeOptions rebuilds options from a queue payload. Numbers inside attrs
// decode as json.Number so integer ids keep their textual form.
func DecodeOptions(data []byte) (DeliveryOptions, error) {
	var o DeliveryOptions
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&o); err != nil {
		return DeliveryOptions{}, NewError(ErrInvalidPayload, "decode delivery options", err, nil)
	}
	return o, nil
}

const filteredValue = "[FILTERED]"

func sensitiveKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "password")
}

// Sanitize copies values, masking anything whose key mentions a password.
func Sanitize(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if sensitiveKey(k) {
			out[k] = filteredValue
			continue
		}
		out[k] = v
	}
	return out
}

// SanitizeURI masks password query values in a descriptor URI. A URI that
// does not parse loses its whole query.
func SanitizeURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		if i := strings.IndexByte(uri, '?'); i >= 0 {
			return uri[:i]
		}
		return uri
	}
	if u.RawQuery == "" {
		return uri
	}
	q := u.Query()
	masked := false
	for k := range q {
		if sensitiveKey(k) {
			q[k] = []string{filteredValue}
			masked = true
		}
	}
	if !masked {
		return uri
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Inspect renders a sanitized, key-sorted view of values for log lines.
func Inspect(values map[string]any) string {
	clean := Sanitize(values)
	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%q=>%v", k, clean[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
