package rules

import (
	"errors"
	"fmt"
	"strings"
)

// MalformedTableError reports a definition that violates the table's structural rules.
// Rule is -1 when the problem is not tied to a rule.
type MalformedTableError struct {
	Table  string
	Rule   int
	Column string
	Reason string
	Err    error
}

func (e *MalformedTableError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "malformed table %q", e.Table)
	if e.Rule >= 0 {
		fmt.Fprintf(&sb, " rule %d", e.Rule+1)
	}
	if e.Column != "" {
		fmt.Fprintf(&sb, " column %q", e.Column)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *MalformedTableError) Unwrap() error { return e.Err }

// NotFoundError is returned when no table with the requested name is loaded
type NotFoundError struct {
	Table string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("decision table %q not found", e.Table)
}

// TypeMismatchError reports an input value whose type disagrees with its column
type TypeMismatchError struct {
	Table    string
	Column   string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("table %q input %q: expected %s, got %s", e.Table, e.Column, e.Expected, e.Actual)
}

// OverlappingRulesError is returned when a UNIQUE or ANY table matches conflicting rules
type OverlappingRulesError struct {
	Table  string
	Policy HitPolicy
	Rules  []int
}

func (e *OverlappingRulesError) Error() string {
	nums := make([]string, len(e.Rules))
	for i, idx := range e.Rules {
		nums[i] = fmt.Sprintf("%d", idx+1)
	}
	return fmt.Sprintf("table %q (%s): rules %s overlap", e.Table, e.Policy, strings.Join(nums, ", "))
}

// EmptyResultError is returned instead of an empty result when a match is required
type EmptyResultError struct {
	Table string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("table %q: no rule matched", e.Table)
}

// ExpressionError wraps a CEL evaluation failure inside a condition or input expression.
// Rule is -1 for input expressions.
type ExpressionError struct {
	Table  string
	Column string
	Rule   int
	Err    error
}

func (e *ExpressionError) Error() string {
	if e.Rule >= 0 {
		return fmt.Sprintf("table %q rule %d column %q: expression failed: %v", e.Table, e.Rule+1, e.Column, e.Err)
	}
	return fmt.Sprintf("table %q input %q: expression failed: %v", e.Table, e.Column, e.Err)
}

func (e *ExpressionError) Unwrap() error { return e.Err }

func IsMalformed(err error) bool {
	var target *MalformedTableError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsTypeMismatch(err error) bool {
	var target *TypeMismatchError
	return errors.As(err, &target)
}

func IsOverlapping(err error) bool {
	var target *OverlappingRulesError
	return errors.As(err, &target)
}

func IsEmptyResult(err error) bool {
	var target *EmptyResultError
	return errors.As(err, &target)
}

func IsExpression(err error) bool {
	var target *ExpressionError
	return errors.As(err, &target)
}
