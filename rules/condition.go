package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
)

// ConditionKind enumerates the forms an input cell can take
type ConditionKind int

const (
	ConditionAny ConditionKind = iota
	ConditionLiteral
	ConditionSet
	ConditionCompare
	ConditionRange
	ConditionExpression
)

// CompareOp is a relational operator used by comparison cells
type CompareOp string

const (
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
)

const celPrefix = "cel:"

// Condition is one compiled input cell of a rule
type Condition struct {
	Kind   ConditionKind
	Values []Literal

	Op    CompareOp
	Bound float64

	Low, High         float64
	LowOpen, HighOpen bool

	Expression string
	program    celProgram
}

// satisfiedBy tests every kind except ConditionExpression, which needs CEL variables
func (c *Condition) satisfiedBy(v Literal) bool {
	switch c.Kind {
	case ConditionAny:
		return true
	case ConditionLiteral, ConditionSet:
		for _, candidate := range c.Values {
			if candidate.Equal(v) {
				return true
			}
		}
		return false
	case ConditionCompare:
		if v.Kind() != KindNumber {
			return false
		}
		n := v.AsNumber()
		switch c.Op {
		case OpLess:
			return n < c.Bound
		case OpLessEqual:
			return n <= c.Bound
		case OpGreater:
			return n > c.Bound
		case OpGreaterEqual:
			return n >= c.Bound
		}
		return false
	case ConditionRange:
		if v.Kind() != KindNumber {
			return false
		}
		n := v.AsNumber()
		if c.LowOpen && n <= c.Low || !c.LowOpen && n < c.Low {
			return false
		}
		if c.HighOpen && n >= c.High || !c.HighOpen && n > c.High {
			return false
		}
		return true
	}
	return false
}

// String renders the canonical cell text; parsing it yields an equal condition
func (c *Condition) String() string {
	switch c.Kind {
	case ConditionLiteral, ConditionSet:
		parts := make([]string, len(c.Values))
		for i, v := range c.Values {
			parts[i] = v.String()
		}
		return strings.Join(parts, ", ")
	case ConditionCompare:
		return string(c.Op) + formatNumber(c.Bound)
	case ConditionRange:
		open, closing := "[", "]"
		if c.LowOpen {
			open = "("
		}
		if c.HighOpen {
			closing = ")"
		}
		return open + formatNumber(c.Low) + ".." + formatNumber(c.High) + closing
	case ConditionExpression:
		return celPrefix + " " + c.Expression
	default:
		return "-"
	}
}

// parseCondition compiles the text of one input cell for col
func parseCondition(text string, col *Column, env *cel.Env) (*Condition, error) {
	s := strings.TrimSpace(text)

	switch {
	case s == "" || s == "-" || s == "*":
		return &Condition{Kind: ConditionAny}, nil

	case strings.HasPrefix(s, celPrefix):
		expr := strings.TrimSpace(strings.TrimPrefix(s, celPrefix))
		if expr == "" {
			return nil, fmt.Errorf("empty expression")
		}
		prog, err := compileExpression(env, expr)
		if err != nil {
			return nil, err
		}
		return &Condition{Kind: ConditionExpression, Expression: expr, program: prog}, nil

	case s[0] == '<' || s[0] == '>':
		if col.Type != TypeNumber {
			return nil, fmt.Errorf("comparison %q requires a number column, column is %s", s, col.Type)
		}
		return parseComparison(s)

	case isRange(s):
		if col.Type != TypeNumber {
			return nil, fmt.Errorf("interval %q requires a number column, column is %s", s, col.Type)
		}
		return parseRange(s)
	}

	items, err := splitList(s)
	if err != nil {
		return nil, err
	}
	values := make([]Literal, 0, len(items))
	for _, item := range items {
		lit, err := parseLiteral(item, col)
		if err != nil {
			return nil, err
		}
		values = append(values, lit)
	}

	kind := ConditionSet
	if len(values) == 1 {
		kind = ConditionLiteral
	}
	return &Condition{Kind: kind, Values: values}, nil
}

func parseComparison(s string) (*Condition, error) {
	var op CompareOp
	switch {
	case strings.HasPrefix(s, "<="):
		op = OpLessEqual
	case strings.HasPrefix(s, ">="):
		op = OpGreaterEqual
	case strings.HasPrefix(s, "<"):
		op = OpLess
	default:
		op = OpGreater
	}

	bound, err := parseNumber(strings.TrimSpace(s[len(op):]))
	if err != nil {
		return nil, fmt.Errorf("comparison %q: %w", s, err)
	}
	return &Condition{Kind: ConditionCompare, Op: op, Bound: bound}, nil
}

func isRange(s string) bool {
	if len(s) < 2 || !strings.Contains(s, "..") {
		return false
	}
	return strings.ContainsRune("[(]", rune(s[0])) && strings.ContainsRune("])[", rune(s[len(s)-1]))
}

// parseRange accepts [a..b], (a..b), ]a..b[ and mixed forms
func parseRange(s string) (*Condition, error) {
	first, last := s[0], s[len(s)-1]
	bounds := strings.SplitN(s[1:len(s)-1], "..", 2)
	if len(bounds) != 2 {
		return nil, fmt.Errorf("interval %q must have the form [low..high]", s)
	}

	low, err := parseNumber(strings.TrimSpace(bounds[0]))
	if err != nil {
		return nil, fmt.Errorf("interval %q: %w", s, err)
	}
	high, err := parseNumber(strings.TrimSpace(bounds[1]))
	if err != nil {
		return nil, fmt.Errorf("interval %q: %w", s, err)
	}
	if low > high {
		return nil, fmt.Errorf("interval %q has low bound above high bound", s)
	}

	return &Condition{
		Kind:     ConditionRange,
		Low:      low,
		High:     high,
		LowOpen:  first == '(' || first == ']',
		HighOpen: last == ')' || last == '[',
	}, nil
}

// splitList splits on commas outside double quotes
func splitList(s string) ([]string, error) {
	var items []string
	var cur strings.Builder
	inQuote, escaped := false, false

	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inQuote:
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			items = append(items, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string in %q", s)
	}
	items = append(items, strings.TrimSpace(cur.String()))

	for _, item := range items {
		if item == "" {
			return nil, fmt.Errorf("empty entry in list %q", s)
		}
	}
	return items, nil
}

// parseLiteral parses cell text against the declared type of col
func parseLiteral(text string, col *Column) (Literal, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Literal{}, fmt.Errorf("empty value")
	}

	var lit Literal
	switch col.Type.kind() {
	case KindNumber:
		n, err := parseNumber(s)
		if err != nil {
			return Literal{}, err
		}
		lit = NumberValue(n)
	case KindBoolean:
		switch strings.ToLower(s) {
		case "true":
			lit = BoolValue(true)
		case "false":
			lit = BoolValue(false)
		default:
			return Literal{}, fmt.Errorf("%q is not a boolean", s)
		}
	default:
		if strings.HasPrefix(s, `"`) {
			unquoted, err := strconv.Unquote(s)
			if err != nil {
				return Literal{}, fmt.Errorf("invalid string %s: %w", s, err)
			}
			s = unquoted
		}
		lit = StringValue(s)
	}

	if !col.allows(lit) {
		return Literal{}, fmt.Errorf("%s is not one of %s", lit, enumList(col.Values))
	}
	return lit, nil
}

func parseNumber(s string) (float64, error) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return n, nil
}

func enumList(values []Literal) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
