package rules

import (
	"fmt"
	"strings"
	"time"
)

// ColumnType is the declared semantic type of a column
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
	TypeEnum    ColumnType = "enum"
)

// kind returns the literal kind values of this column must carry
func (t ColumnType) kind() Kind {
	switch t {
	case TypeNumber:
		return KindNumber
	case TypeBoolean:
		return KindBoolean
	default:
		return KindString
	}
}

func parseColumnType(s string) (ColumnType, bool) {
	switch ColumnType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeString:
		return TypeString, true
	case TypeNumber:
		return TypeNumber, true
	case TypeBoolean:
		return TypeBoolean, true
	case TypeEnum:
		return TypeEnum, true
	}
	return "", false
}

// HitPolicy decides how the set of matching rules becomes a result
type HitPolicy string

const (
	PolicyUnique    HitPolicy = "UNIQUE"
	PolicyFirst     HitPolicy = "FIRST"
	PolicyPriority  HitPolicy = "PRIORITY"
	PolicyAny       HitPolicy = "ANY"
	PolicyCollect   HitPolicy = "COLLECT"
	PolicyRuleOrder HitPolicy = "RULE ORDER"
)

// SingleResult reports whether the policy yields at most one entry
func (p HitPolicy) SingleResult() bool {
	switch p {
	case PolicyCollect, PolicyRuleOrder:
		return false
	}
	return true
}

func parseHitPolicy(s string) (HitPolicy, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", " ")
	switch norm {
	case "", "U", string(PolicyUnique):
		return PolicyUnique, true
	case "F", string(PolicyFirst):
		return PolicyFirst, true
	case "P", string(PolicyPriority):
		return PolicyPriority, true
	case "A", string(PolicyAny):
		return PolicyAny, true
	case "C", string(PolicyCollect):
		return PolicyCollect, true
	case "R", string(PolicyRuleOrder), "RULEORDER":
		return PolicyRuleOrder, true
	}
	return "", false
}

// Aggregation collapses COLLECT results into a single value
type Aggregation string

const (
	AggregateNone  Aggregation = ""
	AggregateSum   Aggregation = "SUM"
	AggregateMin   Aggregation = "MIN"
	AggregateMax   Aggregation = "MAX"
	AggregateCount Aggregation = "COUNT"
)

func parseAggregation(s string) (Aggregation, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "LIST":
		return AggregateNone, true
	case "SUM", "+":
		return AggregateSum, true
	case "MIN", "<":
		return AggregateMin, true
	case "MAX", ">":
		return AggregateMax, true
	case "COUNT", "#":
		return AggregateCount, true
	}
	return "", false
}

// Column describes one input or output column of a table
type Column struct {
	Name string
	Type ColumnType

	// Values lists the allowed literals of an enum column
	Values []Literal

	// Optional input columns may be absent from the input row
	Optional bool

	// Expression is a CEL expression computing an input column from the row
	Expression string

	// Default is returned for an output column when no rule matches
	Default *Literal

	program celProgram
}

// allows reports whether v is a member of an enum column
func (c *Column) allows(v Literal) bool {
	if c.Type != TypeEnum {
		return true
	}
	for _, allowed := range c.Values {
		if allowed.Equal(v) {
			return true
		}
	}
	return false
}

// Rule is one row of a decision table
type Rule struct {
	// Index is the 0-based position of the rule in the table
	Index       int
	ID          string
	Description string
	Priority    int
	Conditions  []*Condition
	Outputs     []Literal
}

// Output maps output column names to values
type Output map[string]Literal

// output builds the rule's output mapping in column order
func (r *Rule) output(cols []*Column) Output {
	out := make(Output, len(cols))
	for i, col := range cols {
		out[col.Name] = r.Outputs[i]
	}
	return out
}

// Table is a compiled, immutable decision table
type Table struct {
	Name         string
	Inputs       []*Column
	Outputs      []*Column
	Rules        []*Rule
	HitPolicy    HitPolicy
	Aggregation  Aggregation
	Distinct     bool
	RequireMatch bool

	// Revision identifies this compiled snapshot of the table
	Revision   string
	Version    int
	CompiledAt time.Time
}

// hasDefaults reports whether any output column declares a default
func (t *Table) hasDefaults() bool {
	for _, col := range t.Outputs {
		if col.Default != nil {
			return true
		}
	}
	return false
}

// Result is the outcome of evaluating a table against one input row
type Result struct {
	Table    string    `json:"table"`
	Revision string    `json:"revision"`
	Policy   HitPolicy `json:"hitPolicy"`

	// Outputs names the table's output columns in declaration order
	Outputs []string `json:"outputs"`
	Entries []Output `json:"entries"`

	// Matched holds the indexes of every rule that matched, in table order
	Matched   []int `json:"matchedRules"`
	Defaulted bool  `json:"defaulted,omitempty"`
}

// Empty reports whether the result carries no entries
func (r *Result) Empty() bool {
	return len(r.Entries) == 0
}

// Single returns the only entry of a single-result evaluation
func (r *Result) Single() (Output, bool) {
	if len(r.Entries) != 1 {
		return nil, false
	}
	return r.Entries[0], true
}

// FirstValue returns the value of the named output column in the first entry
func (r *Result) FirstValue(column string) (Literal, error) {
	if r.Empty() {
		return Literal{}, fmt.Errorf("table %s produced no result", r.Table)
	}
	v, ok := r.Entries[0][column]
	if !ok {
		return Literal{}, fmt.Errorf("table %s has no output %q", r.Table, column)
	}
	return v, nil
}

// Primary returns the first output column of the first entry
func (r *Result) Primary() (Literal, error) {
	if len(r.Outputs) == 0 {
		return Literal{}, fmt.Errorf("table %s declares no outputs", r.Table)
	}
	return r.FirstValue(r.Outputs[0])
}
