package rules

import (
	"testing"
)

// dishDefinition is the two-input table used across the package tests
func dishDefinition() TableDefinition {
	return TableDefinition{
		Name:      "dishDecision",
		HitPolicy: "UNIQUE",
		Inputs: []ColumnDefinition{
			{Name: "season", Type: "enum", Values: []Cell{"Spring", "Summer", "Fall", "Winter"}},
			{Name: "guestCount", Type: "number"},
		},
		Outputs: []ColumnDefinition{
			{Name: "dish", Type: "string"},
		},
		Rules: []RuleDefinition{
			{Conditions: []Cell{`"Spring"`, "<=10"}, Outputs: []Cell{`"Dry Aged Gourmet Steak"`}},
			{Conditions: []Cell{`"Fall"`, ">10"}, Outputs: []Cell{`"Stew"`}},
			{Conditions: []Cell{`"Spring"`, ">10"}, Outputs: []Cell{`"Steak"`}},
			{Conditions: []Cell{`"Summer"`, "-"}, Outputs: []Cell{`"Light Salad and a nice Steak"`}},
			{Conditions: []Cell{`"Fall"`, "<=10"}, Outputs: []Cell{`"Spareribs"`}},
			{Conditions: []Cell{`"Winter"`, "-"}, Outputs: []Cell{`"Roastbeef"`}},
		},
	}
}

// numberTable builds a one-input, one-output table over a number column
func numberTable(t *testing.T, policy string, rules ...RuleDefinition) *Table {
	t.Helper()

	table, err := Compile(TableDefinition{
		Name:      "scores",
		HitPolicy: policy,
		Inputs:    []ColumnDefinition{{Name: "score", Type: "number"}},
		Outputs:   []ColumnDefinition{{Name: "label", Type: "string"}},
		Rules:     rules,
	})
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	return table
}

func rule(condition, output string) RuleDefinition {
	return RuleDefinition{Conditions: []Cell{Cell(condition)}, Outputs: []Cell{Cell(output)}}
}

func mustCompile(t *testing.T, def TableDefinition) *Table {
	t.Helper()

	table, err := Compile(def)
	if err != nil {
		t.Fatalf("Compile(%s) failed: %v", def.Name, err)
	}
	return table
}

func dishRow(season string, guests float64) InputRow {
	return InputRow{
		"season":     StringValue(season),
		"guestCount": NumberValue(guests),
	}
}

func labels(res *Result) []string {
	out := make([]string, len(res.Entries))
	for i, entry := range res.Entries {
		out[i] = entry["label"].AsString()
	}
	return out
}
