package model

import (
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// Field is a single key/value pair of a form submission. Value holds the
// string rendering of the JSON value: strings unquoted, numbers and booleans
// in their JSON text, objects and arrays as raw JSON.
type Field struct {
	Key   string
	Value string
	raw   gjson.Result
}

// IsEmpty reports whether the field carries no usable value: null, "",
// false, 0, {} or [].
func (f Field) IsEmpty() bool {
	switch f.raw.Type {
	case gjson.Null, gjson.False:
		return true
	case gjson.String:
		return f.raw.Str == ""
	case gjson.Number:
		return f.raw.Num == 0
	case gjson.JSON:
		if f.raw.IsObject() {
			return len(f.raw.Map()) == 0
		}
		return len(f.raw.Array()) == 0
	}
	return false
}

// Object returns the nested fields when the value is a JSON object.
func (f Field) Object() ([]Field, bool) {
	if !f.raw.IsObject() {
		return nil, false
	}
	return objectFields(f.raw), true
}

// Submission is an arbitrary form submission with its keys kept in body
// order. Repeated keys keep their first position and take the last value.
type Submission struct {
	fields []Field
	index  map[string]int
}

// ParseSubmission decodes a raw request body. The body must be a JSON object.
func ParseSubmission(body []byte) (*Submission, error) {
	if !utf8.Valid(body) {
		return nil, eris.New("submission: body is not valid UTF-8")
	}
	if !gjson.ValidBytes(body) {
		return nil, eris.New("submission: body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, eris.New("submission: body is not a JSON object")
	}
	return NewSubmission(objectFields(root)), nil
}

// NewSubmission builds a Submission from fields in order.
func NewSubmission(fields []Field) *Submission {
	s := &Submission{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		s.Set(f)
	}
	return s
}

// StringField is a convenience constructor for a string-valued field.
func StringField(key, value string) Field {
	return Field{Key: key, Value: value, raw: gjson.Result{Type: gjson.String, Str: value}}
}

// Set inserts f at the end, or replaces the value in place when the key
// already exists.
func (s *Submission) Set(f Field) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[f.Key]; ok {
		s.fields[i] = f
		return
	}
	s.index[f.Key] = len(s.fields)
	s.fields = append(s.fields, f)
}

// Get returns the field stored under key.
func (s *Submission) Get(key string) (Field, bool) {
	i, ok := s.index[key]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// String returns the string value under key, or "" when absent or empty.
func (s *Submission) String(key string) string {
	f, ok := s.Get(key)
	if !ok || f.IsEmpty() {
		return ""
	}
	return f.Value
}

// Fields returns the fields in submission order.
func (s *Submission) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Len returns the number of distinct keys.
func (s *Submission) Len() int {
	return len(s.fields)
}

func objectFields(obj gjson.Result) []Field {
	var fields []Field
	obj.ForEach(func(key, value gjson.Result) bool {
		fields = append(fields, Field{Key: key.String(), Value: render(value), raw: value})
		return true
	})
	return fields
}

func render(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.Str
	default:
		return v.Raw
	}
}
