package rules

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxColumns = 100
	maxRules   = 10000
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateShape checks the counts of a definition before anything is compiled
func validateShape(def TableDefinition) error {
	if len(def.Inputs) == 0 {
		return fmt.Errorf("table must declare at least one input column")
	}
	if len(def.Outputs) == 0 {
		return fmt.Errorf("table must declare at least one output column")
	}
	if len(def.Inputs) > maxColumns {
		return fmt.Errorf("table declares %d input columns, maximum allowed is %d", len(def.Inputs), maxColumns)
	}
	if len(def.Outputs) > maxColumns {
		return fmt.Errorf("table declares %d output columns, maximum allowed is %d", len(def.Outputs), maxColumns)
	}
	if len(def.Rules) > maxRules {
		return fmt.Errorf("table declares %d rules, maximum allowed is %d", len(def.Rules), maxRules)
	}
	return nil
}

// validateIdentifier validates a table or column name.
// Names must match ^[a-zA-Z_][a-zA-Z0-9_]*$, be 1-100 characters and not be reserved.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(name))
	}

	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}

	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}

	return nil
}

// validateColumnName additionally rejects the names bound by condition expressions
func validateColumnName(name string) error {
	if err := validateIdentifier(name); err != nil {
		return err
	}
	if name == celValueVar || name == celInputVar {
		return fmt.Errorf("%q is bound in expressions and cannot name a column", name)
	}
	return nil
}

// isReservedKeyword checks if a name is a CEL reserved keyword
func isReservedKeyword(name string) bool {
	reservedKeywords := map[string]bool{
		// Boolean and null literals
		"true":  true,
		"false": true,
		"null":  true,
		// Control flow
		"if":       true,
		"else":     true,
		"for":      true,
		"while":    true,
		"break":    true,
		"continue": true,
		"return":   true,
		// Declarations
		"var":      true,
		"let":      true,
		"const":    true,
		"function": true,
		// Other keywords
		"in":        true,
		"as":        true,
		"import":    true,
		"package":   true,
		"namespace": true,
		"loop":      true,
		"void":      true,
	}

	return reservedKeywords[strings.TrimSpace(name)]
}
