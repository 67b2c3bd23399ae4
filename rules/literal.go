package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which variant a Literal holds
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBoolean
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	default:
		return "null"
	}
}

// Literal is a typed scalar used in input rows, rule cells and outputs.
// The zero value is the null literal.
type Literal struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// StringValue returns a string literal
func StringValue(s string) Literal {
	return Literal{kind: KindString, str: s}
}

// NumberValue returns a number literal
func NumberValue(f float64) Literal {
	return Literal{kind: KindNumber, num: f}
}

// BoolValue returns a boolean literal
func BoolValue(b bool) Literal {
	return Literal{kind: KindBoolean, b: b}
}

// LiteralFrom converts a decoded JSON/YAML/CEL value into a Literal.
func LiteralFrom(v any) (Literal, error) {
	switch val := v.(type) {
	case Literal:
		return val, nil
	case string:
		return StringValue(val), nil
	case bool:
		return BoolValue(val), nil
	case float64:
		return NumberValue(val), nil
	case float32:
		return NumberValue(float64(val)), nil
	case int:
		return NumberValue(float64(val)), nil
	case int32:
		return NumberValue(float64(val)), nil
	case int64:
		return NumberValue(float64(val)), nil
	case uint:
		return NumberValue(float64(val)), nil
	case uint32:
		return NumberValue(float64(val)), nil
	case uint64:
		return NumberValue(float64(val)), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return Literal{}, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return NumberValue(f), nil
	default:
		return Literal{}, fmt.Errorf("unsupported value of type %T", v)
	}
}

// Kind returns the variant held by the literal
func (l Literal) Kind() Kind { return l.kind }

// IsNull reports whether the literal is the zero value
func (l Literal) IsNull() bool { return l.kind == KindNull }

// AsString returns the string payload; empty for other kinds
func (l Literal) AsString() string { return l.str }

// AsNumber returns the numeric payload; zero for other kinds
func (l Literal) AsNumber() float64 { return l.num }

// AsBool returns the boolean payload; false for other kinds
func (l Literal) AsBool() bool { return l.b }

// Equal compares kind and payload. Numbers compare numerically.
func (l Literal) Equal(o Literal) bool {
	if l.kind != o.kind {
		return false
	}
	switch l.kind {
	case KindString:
		return l.str == o.str
	case KindNumber:
		return l.num == o.num
	case KindBoolean:
		return l.b == o.b
	default:
		return true
	}
}

// Value returns the Go native value (string, float64, bool or nil)
func (l Literal) Value() any {
	switch l.kind {
	case KindString:
		return l.str
	case KindNumber:
		return l.num
	case KindBoolean:
		return l.b
	default:
		return nil
	}
}

// String renders the literal the way it is written in a table cell
func (l Literal) String() string {
	switch l.kind {
	case KindString:
		return strconv.Quote(l.str)
	case KindNumber:
		return formatNumber(l.num)
	case KindBoolean:
		return strconv.FormatBool(l.b)
	default:
		return "null"
	}
}

func (l Literal) MarshalJSON() ([]byte, error) {
	if l.kind == KindNumber && (math.IsNaN(l.num) || math.IsInf(l.num, 0)) {
		return nil, fmt.Errorf("cannot encode number %v", l.num)
	}
	return json.Marshal(l.Value())
}

func (l *Literal) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*l = Literal{}
		return nil
	}
	lit, err := LiteralFrom(v)
	if err != nil {
		return err
	}
	*l = lit
	return nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// InputRow maps input column names to the values supplied for one evaluation
type InputRow map[string]Literal

// NewInputRow converts loosely typed values (for example a decoded JSON body)
// into an InputRow. Null values are dropped.
func NewInputRow(values map[string]any) (InputRow, error) {
	row := make(InputRow, len(values))
	for name, v := range values {
		if v == nil {
			continue
		}
		lit, err := LiteralFrom(v)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		row[name] = lit
	}
	return row, nil
}
