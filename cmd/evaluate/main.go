// Command evaluate runs one input row through a decision table file and prints the result.
//
//	evaluate -table tables/dish.yaml -input '{"season": "Fall", "guestCount": 15}'
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/liamcoop/decisions/rules"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(out)

	tablePath := fs.String("table", "", "Path to a YAML or JSON decision table (required)")
	input := fs.String("input", "", "Input row as a JSON object (defaults to stdin)")
	requireMatch := fs.Bool("require-match", false, "Fail when no rule matches")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tablePath == "" {
		fs.Usage()
		return fmt.Errorf("-table is required")
	}

	table, err := loadTable(*tablePath)
	if err != nil {
		return err
	}

	raw := []byte(*input)
	if len(raw) == 0 {
		if raw, err = io.ReadAll(os.Stdin); err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
	}
	row, err := parseRow(raw)
	if err != nil {
		return err
	}

	engine := rules.NewEngine(rules.NewStore(), rules.WithRequireMatch(*requireMatch))
	res, err := engine.EvaluateTable(table, row)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(out, table, res)
	return nil
}

func loadTable(path string) (*rules.Table, error) {
	format, ok := rules.FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported file extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	def, err := rules.ParseDefinition(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return rules.Compile(def)
}

func parseRow(raw []byte) (rules.InputRow, error) {
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("input must be a JSON object: %w", err)
	}
	return rules.NewInputRow(values)
}

func printResult(out io.Writer, table *rules.Table, res *rules.Result) {
	title := color.New(color.FgCyan, color.Bold)
	title.Fprintf(out, "%s (%s)\n", table.Name, res.Policy)

	if res.Empty() {
		color.New(color.FgYellow).Fprintln(out, "  no rule matched")
		return
	}

	matched := make([]string, len(res.Matched))
	for i, idx := range res.Matched {
		matched[i] = fmt.Sprintf("%d", idx+1)
	}
	switch {
	case res.Defaulted:
		color.New(color.FgYellow).Fprintln(out, "  defaults applied")
	case len(matched) > 0:
		fmt.Fprintf(out, "  matched rules: %s\n", strings.Join(matched, ", "))
	}

	green := color.New(color.FgGreen)
	for i, entry := range res.Entries {
		if len(res.Entries) > 1 {
			fmt.Fprintf(out, "  [%d]\n", i+1)
		}
		for _, col := range table.Outputs {
			v, ok := entry[col.Name]
			if !ok {
				continue
			}
			fmt.Fprintf(out, "  %s = ", col.Name)
			green.Fprintln(out, v.String())
		}
	}
}
