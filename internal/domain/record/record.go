package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field is one named scalar within a Record. LastSynced trails Value and
// only advances when the field is synced into derived stores.
type Field struct {
	Name       string `json:"name" yaml:"name"`
	Priority   *int   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Value      Value  `json:"value" yaml:"value"`
	LastSynced Value  `json:"last_value" yaml:"last_value"`
}

// Delta returns Value - LastSynced for numeric fields.
func (f *Field) Delta() (float64, bool) {
	cur, ok := f.Value.AsNumber()
	if !ok {
		return 0, false
	}
	last, ok := f.LastSynced.AsNumber()
	if !ok {
		return 0, false
	}
	return cur - last, true
}

// MarkSynced advances LastSynced to the current Value.
func (f *Field) MarkSynced() {
	f.LastSynced = f.Value
}

// Record is the unit of load and save for one entity and one template.
type Record struct {
	Name     string  `json:"name" yaml:"name"`
	Priority *int    `json:"priority,omitempty" yaml:"priority,omitempty"`
	Fields   []Field `json:"fields" yaml:"fields"`
}

// Field returns a pointer to the named field inside r, or nil.
func (r *Record) Field(name string) *Field {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i]
		}
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{Name: r.Name, Priority: cloneInt(r.Priority)}
	if r.Fields != nil {
		out.Fields = make([]Field, len(r.Fields))
		for i, f := range r.Fields {
			f.Priority = cloneInt(f.Priority)
			out.Fields[i] = f
		}
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Validate checks the shape invariants: a named record, uniquely named
// fields, and a value/last-value pair of the same valid kind per field.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidRecord)
	}
	if r.Fields == nil {
		return fmt.Errorf("%w: %s: missing fields", ErrInvalidRecord, r.Name)
	}
	seen := make(map[string]struct{}, len(r.Fields))
	for i := range r.Fields {
		f := &r.Fields[i]
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: %s: field %d has no name", ErrInvalidRecord, r.Name, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidRecord, r.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		if !f.Value.IsValid() {
			return fmt.Errorf("%w: %s.%s: missing value", ErrInvalidRecord, r.Name, f.Name)
		}
		if f.LastSynced.Kind() != f.Value.Kind() {
			return fmt.Errorf("%w: %s.%s: last value is %s, value is %s",
				ErrInvalidRecord, r.Name, f.Name, f.LastSynced.Kind(), f.Value.Kind())
		}
		if !finite(f.Value) || !finite(f.LastSynced) {
			return fmt.Errorf("%w: %s.%s: number is not finite", ErrInvalidRecord, r.Name, f.Name)
		}
	}
	return nil
}

func finite(v Value) bool {
	n, ok := v.AsNumber()
	return !ok || !(math.IsNaN(n) || math.IsInf(n, 0))
}

// Encode serializes r for storage. Invalid records are refused.
func Encode(r *Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// Decode parses stored bytes and validates the result.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeYAML parses a record declared in YAML, typically template defaults.
func DecodeYAML(data []byte) (*Record, error) {
	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
