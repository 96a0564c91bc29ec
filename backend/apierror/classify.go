// Package apierror tells remote-error envelopes apart from arbitrary failure values.
//
// An envelope is any structured value carrying a "data" member that is itself
// structured, mirroring the body { message?: string, data?: { message?: string } }.
package apierror

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Kind discriminates a classification Result.
type Kind int

const (
	KindNotEnvelope Kind = iota
	KindEnvelope
)

func (k Kind) String() string {
	if k == KindEnvelope {
		return "envelope"
	}
	return "not-envelope"
}

// Envelope is the normalized remote-error shape. Message fields are empty when
// the source value did not carry them as strings.
type Envelope struct {
	Message string       `json:"message,omitempty"`
	Data    EnvelopeData `json:"data"`
}

type EnvelopeData struct {
	Message string `json:"message,omitempty"`
}

// Result is the outcome of Classify. Envelope is only meaningful for KindEnvelope.
type Result struct {
	Kind     Kind
	Envelope Envelope
}

func (r Result) IsEnvelope() bool {
	return r.Kind == KindEnvelope
}

// DataMessage returns data.message when it is set, falling back to the top level message.
func (r Result) DataMessage() string {
	if r.Envelope.Data.Message != "" {
		return r.Envelope.Data.Message
	}
	return r.Envelope.Message
}

// IsAPIError reports whether v can be treated as an envelope.
func IsAPIError(v any) bool {
	return Classify(v).IsEnvelope()
}

// Classify inspects v and returns KindEnvelope when v is a non-nil structured
// value whose "data" member is itself a non-nil structured value.
func Classify(v any) Result {
	obj, ok := structured(reflect.ValueOf(v))
	if !ok {
		return Result{}
	}
	data, ok := member(obj, "data")
	if !ok {
		return Result{}
	}
	data, ok = structured(data)
	if !ok {
		return Result{}
	}
	return Result{
		Kind: KindEnvelope,
		Envelope: Envelope{
			Message: stringMember(obj, "message"),
			Data: EnvelopeData{
				Message: stringMember(data, "message"),
			},
		},
	}
}

// ClassifyJSON decodes b and classifies the decoded value.
func ClassifyJSON(b []byte) Result {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return Result{}
	}
	return Classify(v)
}

// ClassifyError walks the unwrap tree of err and returns the first envelope found.
func ClassifyError(err error) Result {
	if err == nil {
		return Result{}
	}
	if res := Classify(err); res.IsEnvelope() {
		return res
	}
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		return ClassifyError(x.Unwrap())
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if res := ClassifyError(e); res.IsEnvelope() {
				return res
			}
		}
	}
	return Result{}
}

// maxIndirections bounds pointer and interface chains, so self-referential
// values such as a pointer to an interface holding itself terminate.
const maxIndirections = 32

// indirect follows pointers and interfaces. It fails on nil, on an invalid
// value and on chains longer than maxIndirections.
func indirect(v reflect.Value) (reflect.Value, bool) {
	for i := 0; v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface); i++ {
		if i == maxIndirections || v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}

// structured dereferences pointers and interfaces and reports whether the
// underlying value is a non-nil map, struct, slice or array.
func structured(v reflect.Value) (reflect.Value, bool) {
	v, ok := indirect(v)
	if !ok {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice:
		return v, !v.IsNil()
	case reflect.Struct, reflect.Array:
		return v, true
	default:
		return reflect.Value{}, false
	}
}

// member looks up a named property of a structured value. Struct fields match
// on their json name, or on the capitalized name when untagged, and include
// fields promoted from embedded structs.
func member(obj reflect.Value, name string) (reflect.Value, bool) {
	switch obj.Kind() {
	case reflect.Map:
		if obj.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		mv := obj.MapIndex(reflect.ValueOf(name).Convert(obj.Type().Key()))
		return mv, mv.IsValid()
	case reflect.Struct:
		for _, f := range reflect.VisibleFields(obj.Type()) {
			if !f.IsExported() || f.Anonymous {
				continue
			}
			if fieldName(f) != name {
				continue
			}
			fv, err := obj.FieldByIndexErr(f.Index)
			if err != nil {
				// promoted through a nil embedded pointer
				return reflect.Value{}, false
			}
			return fv, true
		}
	}
	return reflect.Value{}, false
}

func fieldName(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("json"); ok {
		n, _, _ := strings.Cut(tag, ",")
		if n == "-" {
			return ""
		}
		if n != "" {
			return n
		}
	}
	return strings.ToLower(f.Name[:1]) + f.Name[1:]
}

func stringMember(obj reflect.Value, name string) string {
	v, ok := member(obj, name)
	if !ok {
		return ""
	}
	v, ok = indirect(v)
	if !ok || v.Kind() != reflect.String {
		return ""
	}
	return v.String()
}
