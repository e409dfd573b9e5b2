package prompt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VarType is the declared type of a template variable. The set is closed; values
// outside it are rejected by ParseVarType and NewVariable.
type VarType string

const (
	TypeString  VarType = "string"
	TypeText    VarType = "text"
	TypeNumber  VarType = "number"
	TypeBoolean VarType = "boolean"
	TypeDate    VarType = "date"
	TypeJSON    VarType = "json"
)

// VarTypes lists every VarType.
var VarTypes = []VarType{TypeString, TypeText, TypeNumber, TypeBoolean, TypeDate, TypeJSON}

// ParseVarType returns the VarType named s. Empty means string.
func ParseVarType(s string) (VarType, error) {
	t := VarType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return TypeString, nil
	}
	if !t.Valid() {
		return "", fmt.Errorf("unknown variable type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of VarTypes.
func (t VarType) Valid() bool {
	switch t {
	case TypeString, TypeText, TypeNumber, TypeBoolean, TypeDate, TypeJSON:
		return true
	}
	return false
}

// Format converts a provided value to its substitution text. Values whose Go type
// does not fit t are printed by formatScalar.
func (t VarType) Format(v any) string {
	switch t {
	case TypeString, TypeText, TypeNumber:
		return formatScalar(v)
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b)
		}
		return formatScalar(v)
	case TypeDate:
		switch d := v.(type) {
		case time.Time:
			return d.Format(time.RFC3339)
		case *time.Time:
			if d != nil {
				return d.Format(time.RFC3339)
			}
		}
		return formatScalar(v)
	case TypeJSON:
		switch j := v.(type) {
		case string:
			return j
		case []byte:
			return string(j)
		case json.RawMessage:
			return string(j)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return formatScalar(v)
		}
		return string(b)
	}
	return formatScalar(v)
}

// formatScalar prints v with fmt.Sprint, except that floats (what JSON decoding
// yields for every number) are printed without an exponent.
func formatScalar(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case json.Number:
		return n.String()
	}
	return fmt.Sprint(v)
}

// Variable is one entry of a template's variable schema.
type Variable struct {
	Name         string  `json:"name" yaml:"name"`
	Type         VarType `json:"type" yaml:"type"`
	DefaultValue string  `json:"default_value" yaml:"default_value"`
	Required     bool    `json:"required" yaml:"required"`
	Description  string  `json:"description" yaml:"description"`
}

// NewVariable returns a validated Variable.
func NewVariable(name string, typ VarType, defaultValue string, required bool, description string) (Variable, error) {
	v := Variable{Name: name, Type: typ, DefaultValue: defaultValue, Required: required, Description: description}
	if v.Type == "" {
		v.Type = TypeString
	}
	if err := v.Validate(); err != nil {
		return Variable{}, err
	}
	return v, nil
}

// Validate checks the required fields.
func (v Variable) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("variable name required")
	}
	if !v.Type.Valid() {
		return fmt.Errorf("variable %s: unknown type %q", v.Name, v.Type)
	}
	return nil
}

// UnmarshalJSON decodes and validates a Variable. A missing type means string.
func (v *Variable) UnmarshalJSON(b []byte) error {
	type raw Variable
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	if r.Type == "" {
		r.Type = TypeString
	}
	out := Variable(r)
	if err := out.Validate(); err != nil {
		return err
	}
	*v = out
	return nil
}

// ValidateSchema checks every variable and rejects duplicate names.
func ValidateSchema(schema []Variable) error {
	seen := make(map[string]bool, len(schema))
	for _, v := range schema {
		if err := v.Validate(); err != nil {
			return err
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate variable %q", v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}
