package rules

import (
	"fmt"
)

// Match returns the rules of t whose conditions are all satisfied by row, in
// table order. Input values are type checked against their columns first.
func Match(t *Table, row InputRow) ([]*Rule, error) {
	values, present, vars, err := resolveInputs(t, row)
	if err != nil {
		return nil, err
	}

	matched := make([]*Rule, 0, 1)
	for _, rule := range t.Rules {
		ok, err := ruleMatches(t, rule, values, present, vars)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

// resolveInputs produces one checked value per input column. present[i] is
// false only for optional columns missing from the row.
func resolveInputs(t *Table, row InputRow) ([]Literal, []bool, map[string]any, error) {
	values := make([]Literal, len(t.Inputs))
	present := make([]bool, len(t.Inputs))
	vars := activation(row)

	for i, col := range t.Inputs {
		v, ok, err := inputValue(t, col, row, vars)
		if err != nil {
			return nil, nil, nil, err
		}

		if !ok {
			if col.Optional {
				delete(vars, col.Name)
				continue
			}
			return nil, nil, nil, &TypeMismatchError{
				Table:    t.Name,
				Column:   col.Name,
				Expected: string(col.Type),
				Actual:   "missing",
			}
		}

		if v.Kind() != col.Type.kind() {
			return nil, nil, nil, &TypeMismatchError{
				Table:    t.Name,
				Column:   col.Name,
				Expected: string(col.Type),
				Actual:   v.Kind().String(),
			}
		}
		if !col.allows(v) {
			return nil, nil, nil, &TypeMismatchError{
				Table:    t.Name,
				Column:   col.Name,
				Expected: "one of " + enumList(col.Values),
				Actual:   v.String(),
			}
		}

		values[i] = v
		present[i] = true
	}

	for i, col := range t.Inputs {
		if present[i] {
			vars[col.Name] = values[i].Value()
		}
	}
	return values, present, vars, nil
}

// inputValue reads a column from the row, or computes it when the column has an expression
func inputValue(t *Table, col *Column, row InputRow, vars map[string]any) (Literal, bool, error) {
	if col.program == nil {
		v, ok := row[col.Name]
		if !ok || v.IsNull() {
			return Literal{}, false, nil
		}
		return v, true, nil
	}

	raw, err := evalExpression(col.program, vars)
	if err != nil {
		return Literal{}, false, &ExpressionError{Table: t.Name, Column: col.Name, Rule: -1, Err: err}
	}
	if raw == nil {
		return Literal{}, false, nil
	}
	v, err := LiteralFrom(raw)
	if err != nil {
		return Literal{}, false, &TypeMismatchError{
			Table:    t.Name,
			Column:   col.Name,
			Expected: string(col.Type),
			Actual:   fmt.Sprintf("%T", raw),
		}
	}
	return v, true, nil
}

// ruleMatches is the conjunction of a rule's conditions
func ruleMatches(t *Table, rule *Rule, values []Literal, present []bool, vars map[string]any) (bool, error) {
	for i, cond := range rule.Conditions {
		if cond.Kind == ConditionAny {
			continue
		}
		if !present[i] {
			return false, nil
		}

		if cond.Kind != ConditionExpression {
			if !cond.satisfiedBy(values[i]) {
				return false, nil
			}
			continue
		}

		vars[celValueVar] = values[i].Value()
		out, err := evalExpression(cond.program, vars)
		if err != nil {
			return false, &ExpressionError{Table: t.Name, Column: t.Inputs[i].Name, Rule: rule.Index, Err: err}
		}
		ok, isBool := out.(bool)
		if !isBool {
			return false, &ExpressionError{
				Table:  t.Name,
				Column: t.Inputs[i].Name,
				Rule:   rule.Index,
				Err:    fmt.Errorf("expression returned %T, want bool", out),
			}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
