// Package descriptor builds the automation object URI that identifies a
// workflow target and carries its input attributes.
package descriptor

import (
	"net/url"
	"sort"
	"strings"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/attrs"
)

// Options selects the workflow target and the objects referenced by it.
type Options struct {
	Object    attrs.Object
	Class     string
	Namespace string
	FQClass   string
	Message   string
	// Context objects are referenced after Object, e.g. the current server
	// and user.
	Context []attrs.Object
}

// Descriptor is an immutable automation object reference.
type Descriptor struct {
	namespace string
	class     string
	instance  string
	attrs     attrs.Map
	message   string
}

// Build resolves the target path, builds request attributes and encodes them.
// An empty instance targets automate.DefaultInstanceName.
func Build(instance string, values attrs.Values, opts Options) (Descriptor, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		instance = automate.DefaultInstanceName
	}
	namespace, class := opts.Namespace, opts.Class
	if opts.FQClass != "" {
		ns, cls, _, err := SplitPath(opts.FQClass, false)
		if err != nil {
			return Descriptor{}, err
		}
		namespace, class = ns, cls
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if class == "" {
		class = DefaultClass
	}

	request := attrs.BuildRequest(values, instance, opts.Object, opts.Context...)
	encoded, err := attrs.EncodeMap(map[string]any(request))
	if err != nil {
		return Descriptor{}, err
	}

	return New(namespace, class, instance, encoded, opts.Message), nil
}

// New composes a descriptor from already encoded parts.
func New(namespace, class, instance string, m attrs.Map, message string) Descriptor {
	cp := make(attrs.Map, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Descriptor{
		namespace: namespace,
		class:     class,
		instance:  instance,
		attrs:     cp,
		message:   message,
	}
}

func (d Descriptor) Namespace() string { return d.namespace }
func (d Descriptor) Class() string     { return d.class }
func (d Descriptor) Instance() string  { return d.instance }
func (d Descriptor) Message() string   { return d.message }

// Attr returns one encoded attribute.
func (d Descriptor) Attr(key string) (string, bool) {
	v, ok := d.attrs[key]
	return v, ok
}

// Attrs returns a copy of the encoded attribute map.
func (d Descriptor) Attrs() attrs.Map {
	cp := make(attrs.Map, len(d.attrs))
	for k, v := range d.attrs {
		cp[k] = v
	}
	return cp
}

// Path is "/namespace/class/instance".
func (d Descriptor) Path() string {
	return JoinPath(d.namespace, d.class, d.instance)
}

// String is the canonical URI: path, attributes as query, message as
// fragment.
func (d Descriptor) String() string {
	u := url.URL{Path: d.Path(), Fragment: d.message}
	if len(d.attrs) > 0 {
		q := url.Values{}
		for k, v := range d.attrs {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Keys lists attribute keys in sorted order.
func (d Descriptor) Keys() []string {
	keys := make([]string, 0, len(d.attrs))
	for k := range d.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse rebuilds a descriptor from its canonical URI.
func Parse(raw string) (Descriptor, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Descriptor{}, automate.NewError(automate.ErrInvalidDescriptor, "parse automation uri", err, map[string]any{"uri": raw})
	}
	namespace, class, instance, err := SplitPath(u.Path, true)
	if err != nil {
		return Descriptor{}, automate.NewError(automate.ErrInvalidDescriptor, "parse automation uri path", err, map[string]any{"uri": raw})
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return Descriptor{}, automate.NewError(automate.ErrInvalidDescriptor, "parse automation uri query", err, map[string]any{"uri": raw})
	}
	m := make(attrs.Map, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			m[k] = vs[0]
		}
	}
	return Descriptor{
		namespace: namespace,
		class:     class,
		instance:  instance,
		attrs:     m,
		message:   u.Fragment,
	}, nil
}
