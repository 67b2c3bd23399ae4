package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Cell is the raw text of a table cell. JSON numbers and booleans are accepted
// unquoted so definitions can be written naturally in either format.
type Cell string

func (c *Cell) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Cell(s)
		return nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		*c = ""
		return nil
	}
	*c = Cell(trimmed)
	return nil
}

// ColumnDefinition is the declarative form of a Column
type ColumnDefinition struct {
	Name       string `yaml:"name" json:"name"`
	Type       string `yaml:"type" json:"type"`
	Values     []Cell `yaml:"values,omitempty" json:"values,omitempty"`
	Optional   bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
	Default    *Cell  `yaml:"default,omitempty" json:"default,omitempty"`
}

// RuleDefinition is the declarative form of a Rule
type RuleDefinition struct {
	ID          string `yaml:"id,omitempty" json:"id,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Priority    int    `yaml:"priority,omitempty" json:"priority,omitempty"`
	Conditions  []Cell `yaml:"conditions" json:"conditions"`
	Outputs     []Cell `yaml:"outputs" json:"outputs"`
}

// TableDefinition is the declarative form of a decision table as stored in
// files, embedded resources and the definition repository.
type TableDefinition struct {
	Name         string             `yaml:"name" json:"name"`
	HitPolicy    string             `yaml:"hitPolicy,omitempty" json:"hitPolicy,omitempty"`
	Aggregation  string             `yaml:"aggregation,omitempty" json:"aggregation,omitempty"`
	Distinct     bool               `yaml:"distinct,omitempty" json:"distinct,omitempty"`
	RequireMatch bool               `yaml:"requireMatch,omitempty" json:"requireMatch,omitempty"`
	Version      int                `yaml:"version,omitempty" json:"version,omitempty"`
	Inputs       []ColumnDefinition `yaml:"inputs" json:"inputs"`
	Outputs      []ColumnDefinition `yaml:"outputs" json:"outputs"`
	Rules        []RuleDefinition   `yaml:"rules" json:"rules"`
}

// Format is the encoding of a definition document
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	}
	return "", false
}

// ParseDefinition decodes a definition document. Unknown fields are rejected.
func ParseDefinition(data []byte, format Format) (TableDefinition, error) {
	var def TableDefinition

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return def, &MalformedTableError{Rule: -1, Reason: "invalid JSON definition", Err: err}
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return def, &MalformedTableError{Rule: -1, Reason: "invalid YAML definition", Err: err}
		}
	default:
		return def, fmt.Errorf("unsupported definition format %q", format)
	}

	return def, nil
}

// Compile validates a definition and builds the immutable table it describes.
// Every structural problem is reported as a *MalformedTableError.
func Compile(def TableDefinition) (*Table, error) {
	name := strings.TrimSpace(def.Name)
	fail := func(rule int, column, reason string, err error) error {
		return &MalformedTableError{Table: name, Rule: rule, Column: column, Reason: reason, Err: err}
	}

	if err := validateIdentifier(name); err != nil {
		return nil, fail(-1, "", "invalid table name", err)
	}
	if err := validateShape(def); err != nil {
		return nil, fail(-1, "", "invalid shape", err)
	}

	policy, ok := parseHitPolicy(def.HitPolicy)
	if !ok {
		return nil, fail(-1, "", fmt.Sprintf("unknown hit policy %q", def.HitPolicy), nil)
	}
	aggregation, ok := parseAggregation(def.Aggregation)
	if !ok {
		return nil, fail(-1, "", fmt.Sprintf("unknown aggregation %q", def.Aggregation), nil)
	}
	if aggregation != AggregateNone && policy != PolicyCollect {
		return nil, fail(-1, "", fmt.Sprintf("aggregation %s requires hit policy %s", aggregation, PolicyCollect), nil)
	}
	if def.Distinct && policy != PolicyCollect {
		return nil, fail(-1, "", fmt.Sprintf("distinct requires hit policy %s", PolicyCollect), nil)
	}

	inputs, err := compileColumns(def.Inputs, true)
	if err != nil {
		return nil, fail(-1, err.column, err.reason, err.err)
	}
	outputs, err := compileColumns(def.Outputs, false)
	if err != nil {
		return nil, fail(-1, err.column, err.reason, err.err)
	}

	if aggregation != AggregateNone {
		if len(outputs) != 1 {
			return nil, fail(-1, "", fmt.Sprintf("aggregation %s requires exactly one output column", aggregation), nil)
		}
		if aggregation != AggregateCount && outputs[0].Type != TypeNumber {
			return nil, fail(-1, outputs[0].Name, fmt.Sprintf("aggregation %s requires a number output", aggregation), nil)
		}
	}

	env, envErr := newCELEnv(inputs)
	if envErr != nil {
		return nil, fail(-1, "", "invalid expression environment", envErr)
	}
	for _, col := range inputs {
		if col.Expression == "" {
			continue
		}
		prog, err := compileExpression(env, col.Expression)
		if err != nil {
			return nil, fail(-1, col.Name, "invalid input expression", err)
		}
		col.program = prog
	}

	table := &Table{
		Name:         name,
		Inputs:       inputs,
		Outputs:      outputs,
		Rules:        make([]*Rule, 0, len(def.Rules)),
		HitPolicy:    policy,
		Aggregation:  aggregation,
		Distinct:     def.Distinct,
		RequireMatch: def.RequireMatch,
		Revision:     uuid.NewString(),
		Version:      def.Version,
		CompiledAt:   time.Now().UTC(),
	}

	for i, rd := range def.Rules {
		if len(rd.Conditions) != len(inputs) {
			return nil, fail(i, "", fmt.Sprintf("has %d conditions, table has %d input columns", len(rd.Conditions), len(inputs)), nil)
		}
		if len(rd.Outputs) != len(outputs) {
			return nil, fail(i, "", fmt.Sprintf("has %d outputs, table has %d output columns", len(rd.Outputs), len(outputs)), nil)
		}

		rule := &Rule{
			Index:       i,
			ID:          rd.ID,
			Description: rd.Description,
			Priority:    rd.Priority,
			Conditions:  make([]*Condition, len(inputs)),
			Outputs:     make([]Literal, len(outputs)),
		}
		for j, cell := range rd.Conditions {
			cond, err := parseCondition(string(cell), inputs[j], env)
			if err != nil {
				return nil, fail(i, inputs[j].Name, "invalid condition", err)
			}
			rule.Conditions[j] = cond
		}
		for j, cell := range rd.Outputs {
			lit, err := parseLiteral(string(cell), outputs[j])
			if err != nil {
				return nil, fail(i, outputs[j].Name, "invalid output", err)
			}
			rule.Outputs[j] = lit
		}
		table.Rules = append(table.Rules, rule)
	}

	return table, nil
}

type columnError struct {
	column string
	reason string
	err    error
}

func compileColumns(defs []ColumnDefinition, input bool) ([]*Column, *columnError) {
	cols := make([]*Column, 0, len(defs))
	seen := make(map[string]bool, len(defs))

	for _, cd := range defs {
		name := strings.TrimSpace(cd.Name)
		if err := validateColumnName(name); err != nil {
			return nil, &columnError{column: name, reason: "invalid column name", err: err}
		}
		if seen[name] {
			return nil, &columnError{column: name, reason: "duplicate column name"}
		}
		seen[name] = true

		colType, ok := parseColumnType(cd.Type)
		if !ok {
			return nil, &columnError{column: name, reason: fmt.Sprintf("unknown column type %q", cd.Type)}
		}

		col := &Column{Name: name, Type: colType}

		if colType == TypeEnum {
			if len(cd.Values) == 0 {
				return nil, &columnError{column: name, reason: "enum column must list its values"}
			}
			plain := &Column{Name: name, Type: TypeString}
			for _, v := range cd.Values {
				lit, err := parseLiteral(string(v), plain)
				if err != nil {
					return nil, &columnError{column: name, reason: "invalid enum value", err: err}
				}
				col.Values = append(col.Values, lit)
			}
		} else if len(cd.Values) > 0 {
			return nil, &columnError{column: name, reason: fmt.Sprintf("values are only allowed on enum columns, column is %s", colType)}
		}

		if input {
			if cd.Default != nil {
				return nil, &columnError{column: name, reason: "defaults are only allowed on output columns"}
			}
			col.Optional = cd.Optional
			col.Expression = strings.TrimSpace(cd.Expression)
		} else {
			if cd.Optional || cd.Expression != "" {
				return nil, &columnError{column: name, reason: "optional and expression are only allowed on input columns"}
			}
			if cd.Default != nil {
				lit, err := parseLiteral(string(*cd.Default), col)
				if err != nil {
					return nil, &columnError{column: name, reason: "invalid default", err: err}
				}
				col.Default = &lit
			}
		}

		cols = append(cols, col)
	}

	return cols, nil
}

// Describe re-serializes a compiled table. Compile(Describe(t)) yields a table
// equivalent to t.
func Describe(t *Table) TableDefinition {
	def := TableDefinition{
		Name:         t.Name,
		HitPolicy:    string(t.HitPolicy),
		Aggregation:  string(t.Aggregation),
		Distinct:     t.Distinct,
		RequireMatch: t.RequireMatch,
		Version:      t.Version,
		Inputs:       describeColumns(t.Inputs),
		Outputs:      describeColumns(t.Outputs),
		Rules:        make([]RuleDefinition, len(t.Rules)),
	}

	for i, rule := range t.Rules {
		rd := RuleDefinition{
			ID:          rule.ID,
			Description: rule.Description,
			Priority:    rule.Priority,
			Conditions:  make([]Cell, len(rule.Conditions)),
			Outputs:     make([]Cell, len(rule.Outputs)),
		}
		for j, cond := range rule.Conditions {
			rd.Conditions[j] = Cell(cond.String())
		}
		for j, out := range rule.Outputs {
			rd.Outputs[j] = Cell(out.String())
		}
		def.Rules[i] = rd
	}

	return def
}

func describeColumns(cols []*Column) []ColumnDefinition {
	defs := make([]ColumnDefinition, len(cols))
	for i, col := range cols {
		cd := ColumnDefinition{
			Name:       col.Name,
			Type:       string(col.Type),
			Optional:   col.Optional,
			Expression: col.Expression,
		}
		for _, v := range col.Values {
			cd.Values = append(cd.Values, Cell(v.String()))
		}
		if col.Default != nil {
			d := Cell(col.Default.String())
			cd.Default = &d
		}
		defs[i] = cd
	}
	return defs
}
