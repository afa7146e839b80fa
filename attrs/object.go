// Package attrs encodes domain-object references and collections into the
// flat string-keyed attribute map consumed by the workflow engine.
package attrs

import (
	"reflect"
	"regexp"
	"strings"
)

// Object is a domain record that can be referenced from an attribute map.
type Object interface {
	ObjectID() int64
	// ClassName is the concrete logical type, e.g. "MiqProvisionRequest".
	ClassName() string
}

// BaseClasser reports the root of an object's type hierarchy. Objects that
// do not implement it are their own base class.
type BaseClasser interface {
	BaseClassName() string
}

// BaseModeler reports the shared model a request task family keys under.
type BaseModeler interface {
	BaseModelName() string
}

// Family groups polymorphic object types that key differently.
type Family int

const (
	FamilyNone Family = iota
	FamilyRequest
	FamilyRequestTask
	FamilyVMOrTemplate
)

// FamilyMember is implemented by objects that belong to a keyed family.
type FamilyMember interface {
	AutomationFamily() Family
}

const (
	vmOrTemplateToken = "VmOrTemplate"
	vmFieldName       = "vm"
)

// FamilyOf returns the family an object declares, FamilyNone otherwise.
func FamilyOf(o Object) Family {
	if fm, ok := o.(FamilyMember); ok {
		return fm.AutomationFamily()
	}
	return FamilyNone
}

// ClassToken resolves the class half of an attribute key.
func ClassToken(o Object) string {
	switch FamilyOf(o) {
	case FamilyRequest:
		return o.ClassName()
	case FamilyRequestTask:
		if bm, ok := o.(BaseModeler); ok && bm.BaseModelName() != "" {
			return bm.BaseModelName()
		}
		return baseClassName(o)
	case FamilyVMOrTemplate:
		return vmOrTemplateToken
	default:
		return baseClassName(o)
	}
}

// FieldName resolves the field half of an attribute key.
func FieldName(o Object) string {
	if FamilyOf(o) == FamilyVMOrTemplate {
		return vmFieldName
	}
	return Underscore(ClassToken(o))
}

func baseClassName(o Object) string {
	if bc, ok := o.(BaseClasser); ok && bc.BaseClassName() != "" {
		return bc.BaseClassName()
	}
	return o.ClassName()
}

var (
	acronymBoundary = regexp.MustCompile(`([A-Z\d]+)([A-Z][a-z])`)
	wordBoundary    = regexp.MustCompile(`([a-z\d])([A-Z])`)
)

// Underscore converts a CamelCase type name to snake_case; "::" namespace
// separators become "/".
func Underscore(name string) string {
	s := strings.ReplaceAll(name, "::", "/")
	s = acronymBoundary.ReplaceAllString(s, "${1}_${2}")
	s = wordBoundary.ReplaceAllString(s, "${1}_${2}")
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToLower(s)
}

// IsNil reports whether o is nil or a typed nil pointer.
func IsNil(o Object) bool {
	if o == nil {
		return true
	}
	v := reflect.ValueOf(o)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return v.IsNil()
	}
	return false
}

// Ref is a plain reference to a record known only by type and id.
type Ref struct {
	Type string
	ID   int64
}

func (r Ref) ObjectID() int64   { return r.ID }
func (r Ref) ClassName() string { return r.Type }
