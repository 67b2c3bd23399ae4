package rules

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestCompileDishTable(t *testing.T) {
	table := mustCompile(t, dishDefinition())

	if table.HitPolicy != PolicyUnique {
		t.Errorf("HitPolicy = %s, want UNIQUE", table.HitPolicy)
	}
	if len(table.Inputs) != 2 || len(table.Outputs) != 1 {
		t.Fatalf("got %d inputs and %d outputs, want 2 and 1", len(table.Inputs), len(table.Outputs))
	}
	if len(table.Rules) != 6 {
		t.Fatalf("got %d rules, want 6", len(table.Rules))
	}
	if table.Revision == "" {
		t.Error("Revision should be set")
	}

	for i, r := range table.Rules {
		if r.Index != i {
			t.Errorf("rule %d has Index %d", i, r.Index)
		}
	}
	if table.Rules[0].Outputs[0].AsString() != "Dry Aged Gourmet Steak" {
		t.Errorf("rule 0 output = %v", table.Rules[0].Outputs[0])
	}
	if table.Rules[3].Conditions[1].Kind != ConditionAny {
		t.Error("rule 3 guestCount should be a wildcard")
	}
}

func TestCompileMalformed(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(def *TableDefinition)
		rule   int
		column string
	}{
		{"bad table name", func(d *TableDefinition) { d.Name = "dish-decision" }, -1, ""},
		{"no inputs", func(d *TableDefinition) { d.Inputs = nil }, -1, ""},
		{"no outputs", func(d *TableDefinition) { d.Outputs = nil }, -1, ""},
		{"unknown policy", func(d *TableDefinition) { d.HitPolicy = "SOMETIMES" }, -1, ""},
		{"unknown aggregation", func(d *TableDefinition) { d.HitPolicy = "COLLECT"; d.Aggregation = "AVG" }, -1, ""},
		{"aggregation without collect", func(d *TableDefinition) { d.Aggregation = "SUM" }, -1, ""},
		{"distinct without collect", func(d *TableDefinition) { d.Distinct = true }, -1, ""},
		{"sum of strings", func(d *TableDefinition) { d.HitPolicy = "COLLECT"; d.Aggregation = "SUM" }, -1, "dish"},
		{"unknown type", func(d *TableDefinition) { d.Inputs[1].Type = "integer" }, -1, "guestCount"},
		{"duplicate column", func(d *TableDefinition) { d.Inputs[1].Name = "season" }, -1, "season"},
		{"reserved column", func(d *TableDefinition) { d.Inputs[1].Name = "value" }, -1, "value"},
		{"enum without values", func(d *TableDefinition) { d.Inputs[0].Values = nil }, -1, "season"},
		{"values on number", func(d *TableDefinition) { d.Inputs[1].Values = []Cell{"1"} }, -1, "guestCount"},
		{"default on input", func(d *TableDefinition) { c := Cell("1"); d.Inputs[1].Default = &c }, -1, "guestCount"},
		{"optional output", func(d *TableDefinition) { d.Outputs[0].Optional = true }, -1, "dish"},
		{"bad input expression", func(d *TableDefinition) { d.Inputs[1].Expression = "input.(" }, -1, "guestCount"},
		{"too few conditions", func(d *TableDefinition) { d.Rules[2].Conditions = []Cell{`"Spring"`} }, 2, ""},
		{"too many outputs", func(d *TableDefinition) { d.Rules[4].Outputs = []Cell{`"a"`, `"b"`} }, 4, ""},
		{"enum value outside set", func(d *TableDefinition) { d.Rules[1].Conditions[0] = `"Autumn"` }, 1, "season"},
		{"comparison on enum", func(d *TableDefinition) { d.Rules[0].Conditions[0] = "<3" }, 0, "season"},
		{"wrong output type", func(d *TableDefinition) { d.Outputs[0].Type = "number" }, 0, "dish"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			def := dishDefinition()
			tc.mutate(&def)

			_, err := Compile(def)
			if err == nil {
				t.Fatal("Compile() should fail")
			}
			var malformed *MalformedTableError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected *MalformedTableError, got %T: %v", err, err)
			}
			if malformed.Rule != tc.rule {
				t.Errorf("Rule = %d, want %d (%v)", malformed.Rule, tc.rule, err)
			}
			if malformed.Column != tc.column {
				t.Errorf("Column = %q, want %q (%v)", malformed.Column, tc.column, err)
			}
		})
	}
}

func TestCompileHitPolicyAliases(t *testing.T) {
	testCases := map[string]HitPolicy{
		"":           PolicyUnique,
		"u":          PolicyUnique,
		"first":      PolicyFirst,
		"P":          PolicyPriority,
		"any":        PolicyAny,
		"C":          PolicyCollect,
		"RULE_ORDER": PolicyRuleOrder,
		"rule order": PolicyRuleOrder,
	}

	for input, want := range testCases {
		def := dishDefinition()
		def.HitPolicy = input
		table := mustCompile(t, def)
		if table.HitPolicy != want {
			t.Errorf("hit policy %q compiled to %s, want %s", input, table.HitPolicy, want)
		}
	}
}

// TestDescribeRoundTrip verifies that a described table compiles back to the same description
func TestDescribeRoundTrip(t *testing.T) {
	def := dishDefinition()
	def.Outputs = append(def.Outputs, ColumnDefinition{Name: "servings", Type: "number", Default: cellPtr("1")})
	def.Inputs = append(def.Inputs, ColumnDefinition{Name: "vip", Type: "boolean", Optional: true})
	def.HitPolicy = "FIRST"
	def.RequireMatch = true
	def.Version = 4
	for i := range def.Rules {
		def.Rules[i].Conditions = append(def.Rules[i].Conditions, "-")
		def.Rules[i].Outputs = append(def.Rules[i].Outputs, "2")
	}
	def.Rules[0].Conditions[2] = "true"
	def.Rules[1].Conditions[1] = "[11..20)"
	def.Rules[1].ID = "fall-large"
	def.Rules[1].Priority = 3

	first := Describe(mustCompile(t, def))
	second := Describe(mustCompile(t, first))

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Describe round trip differs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if first.Version != 4 || !first.RequireMatch || first.HitPolicy != "FIRST" {
		t.Errorf("table attributes lost: %+v", first)
	}
	if first.Rules[1].ID != "fall-large" || first.Rules[1].Priority != 3 {
		t.Errorf("rule attributes lost: %+v", first.Rules[1])
	}
	if got := string(first.Rules[1].Conditions[1]); got != "[11..20)" {
		t.Errorf("range condition described as %q", got)
	}
}

func TestParseDefinitionYAML(t *testing.T) {
	doc := `
name: dishDecision
hitPolicy: UNIQUE
inputs:
  - name: season
    type: enum
    values: [Spring, Summer, Fall, Winter]
  - name: guestCount
    type: number
outputs:
  - name: dish
    type: string
rules:
  - conditions: ['"Spring"', "<=10"]
    outputs: ['"Dry Aged Gourmet Steak"']
  - conditions: ['"Winter"', "-"]
    outputs: [Roastbeef]
`
	def, err := ParseDefinition([]byte(doc), FormatYAML)
	if err != nil {
		t.Fatalf("ParseDefinition() failed: %v", err)
	}

	table := mustCompile(t, def)
	if len(table.Rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(table.Rules))
	}
	if table.Rules[1].Outputs[0].AsString() != "Roastbeef" {
		t.Errorf("rule 1 output = %v", table.Rules[1].Outputs[0])
	}
}

func TestParseDefinitionJSON(t *testing.T) {
	doc := `{
		"name": "discount",
		"hitPolicy": "COLLECT",
		"aggregation": "SUM",
		"inputs": [{"name": "amount", "type": "number"}],
		"outputs": [{"name": "discount", "type": "number", "default": 0}],
		"rules": [
			{"conditions": [">=100"], "outputs": [5]},
			{"conditions": [">=1000"], "outputs": [10]}
		]
	}`
	def, err := ParseDefinition([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("ParseDefinition() failed: %v", err)
	}
	if def.Rules[0].Outputs[0] != "5" {
		t.Errorf("unquoted JSON number decoded as %q", def.Rules[0].Outputs[0])
	}

	table := mustCompile(t, def)
	if table.Aggregation != AggregateSum {
		t.Errorf("Aggregation = %s, want SUM", table.Aggregation)
	}
}

func TestParseDefinitionUnknownField(t *testing.T) {
	if _, err := ParseDefinition([]byte("name: x\nhitpolicy: FIRST\n"), FormatYAML); !IsMalformed(err) {
		t.Errorf("YAML unknown field should be malformed, got %v", err)
	}
	if _, err := ParseDefinition([]byte(`{"name":"x","policy":"FIRST"}`), FormatJSON); !IsMalformed(err) {
		t.Errorf("JSON unknown field should be malformed, got %v", err)
	}
	if _, err := ParseDefinition([]byte("{}"), Format("toml")); err == nil || !strings.Contains(err.Error(), "toml") {
		t.Errorf("unsupported format should be reported, got %v", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	testCases := map[string]Format{
		"tables/dish.yaml": FormatYAML,
		"dish.YML":         FormatYAML,
		"dish.json":        FormatJSON,
	}
	for path, want := range testCases {
		got, ok := FormatFromPath(path)
		if !ok || got != want {
			t.Errorf("FormatFromPath(%q) = %q, %v", path, got, ok)
		}
	}
	if _, ok := FormatFromPath("README.md"); ok {
		t.Error("markdown should not be a definition format")
	}
}

func cellPtr(s string) *Cell {
	c := Cell(s)
	return &c
}
