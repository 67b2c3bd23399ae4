package rules

import (
	"fmt"
)

// Resolve combines the matched rules of t into a result according to the
// table's hit policy. matched must be in table order, as returned by Match.
func Resolve(t *Table, matched []*Rule) (*Result, error) {
	return resolve(t, matched, t.RequireMatch)
}

func resolve(t *Table, matched []*Rule, requireMatch bool) (*Result, error) {
	res := &Result{
		Table:    t.Name,
		Revision: t.Revision,
		Policy:   t.HitPolicy,
		Outputs:  make([]string, len(t.Outputs)),
		Entries:  []Output{},
		Matched:  make([]int, len(matched)),
	}
	for i, col := range t.Outputs {
		res.Outputs[i] = col.Name
	}
	for i, rule := range matched {
		res.Matched[i] = rule.Index
	}

	// COUNT over nothing is still an answer
	countsEmpty := t.HitPolicy == PolicyCollect && t.Aggregation == AggregateCount
	if len(matched) == 0 && !countsEmpty {
		return resolveNoMatch(t, res, requireMatch)
	}

	switch t.HitPolicy {
	case PolicyUnique:
		if len(matched) > 1 {
			return nil, &OverlappingRulesError{Table: t.Name, Policy: t.HitPolicy, Rules: res.Matched}
		}
		res.Entries = append(res.Entries, matched[0].output(t.Outputs))

	case PolicyFirst:
		res.Entries = append(res.Entries, matched[0].output(t.Outputs))

	case PolicyPriority:
		best := matched[0]
		for _, rule := range matched[1:] {
			if rule.Priority > best.Priority {
				best = rule
			}
		}
		res.Entries = append(res.Entries, best.output(t.Outputs))

	case PolicyAny:
		first := matched[0]
		for _, rule := range matched[1:] {
			if !sameOutputs(first.Outputs, rule.Outputs) {
				return nil, &OverlappingRulesError{Table: t.Name, Policy: t.HitPolicy, Rules: res.Matched}
			}
		}
		res.Entries = append(res.Entries, first.output(t.Outputs))

	case PolicyCollect:
		entries, err := collect(t, matched)
		if err != nil {
			return nil, err
		}
		res.Entries = entries

	case PolicyRuleOrder:
		for _, rule := range matched {
			res.Entries = append(res.Entries, rule.output(t.Outputs))
		}

	default:
		return nil, fmt.Errorf("table %q: unsupported hit policy %q", t.Name, t.HitPolicy)
	}

	return res, nil
}

// resolveNoMatch applies output defaults for single-result policies, then
// falls back to an empty result or an EmptyResultError.
func resolveNoMatch(t *Table, res *Result, requireMatch bool) (*Result, error) {
	if t.HitPolicy.SingleResult() && t.hasDefaults() {
		out := make(Output, len(t.Outputs))
		for _, col := range t.Outputs {
			if col.Default != nil {
				out[col.Name] = *col.Default
			}
		}
		res.Entries = append(res.Entries, out)
		res.Defaulted = true
		return res, nil
	}

	if requireMatch {
		return nil, &EmptyResultError{Table: t.Name}
	}
	return res, nil
}

// collect lists matched outputs in table order, optionally de-duplicated and aggregated
func collect(t *Table, matched []*Rule) ([]Output, error) {
	rows := make([][]Literal, 0, len(matched))
	for _, rule := range matched {
		if t.Distinct && containsOutputs(rows, rule.Outputs) {
			continue
		}
		rows = append(rows, rule.Outputs)
	}

	if t.Aggregation == AggregateNone {
		entries := make([]Output, len(rows))
		for i, outputs := range rows {
			entry := make(Output, len(t.Outputs))
			for j, col := range t.Outputs {
				entry[col.Name] = outputs[j]
			}
			entries[i] = entry
		}
		return entries, nil
	}

	col := t.Outputs[0]
	if t.Aggregation == AggregateCount {
		return []Output{{col.Name: NumberValue(float64(len(rows)))}}, nil
	}

	acc := rows[0][0].AsNumber()
	for _, outputs := range rows[1:] {
		n := outputs[0].AsNumber()
		switch t.Aggregation {
		case AggregateSum:
			acc += n
		case AggregateMin:
			if n < acc {
				acc = n
			}
		case AggregateMax:
			if n > acc {
				acc = n
			}
		default:
			return nil, fmt.Errorf("table %q: unsupported aggregation %q", t.Name, t.Aggregation)
		}
	}
	return []Output{{col.Name: NumberValue(acc)}}, nil
}

func sameOutputs(a, b []Literal) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func containsOutputs(rows [][]Literal, outputs []Literal) bool {
	for _, row := range rows {
		if sameOutputs(row, outputs) {
			return true
		}
	}
	return false
}
