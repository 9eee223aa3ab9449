package grading

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Threshold maps a minimum percentage to a rank label.
type Threshold struct {
	Label      string
	MinPercent int
}

// RankTable is an ordered list of thresholds, highest first.
type RankTable struct {
	thresholds []Threshold
}

// DefaultRankTable returns the production ranks: 100 S, 67 A, 34 B, else C.
//
// With three equally weighted questions B is unreachable: 1/3 rounds to 33
// (C) and 2/3 to 67 (A). Operators overriding RANK_TABLE for short quests
// should pick thresholds that land between those steps.
func DefaultRankTable() RankTable {
	t, _ := NewRankTable([]Threshold{
		{Label: "S", MinPercent: 100},
		{Label: "A", MinPercent: 67},
		{Label: "B", MinPercent: 34},
		{Label: "C", MinPercent: 0},
	})
	return t
}

// NewRankTable validates and orders thresholds. One threshold must start at 0
// so every percentage resolves to a label.
func NewRankTable(thresholds []Threshold) (RankTable, error) {
	if len(thresholds) == 0 {
		return RankTable{}, fmt.Errorf("rank table is empty")
	}
	out := append([]Threshold(nil), thresholds...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinPercent > out[j].MinPercent })

	seen := make(map[int]struct{}, len(out))
	for _, th := range out {
		if th.Label == "" {
			return RankTable{}, fmt.Errorf("rank threshold %d has no label", th.MinPercent)
		}
		if th.MinPercent < 0 || th.MinPercent > 100 {
			return RankTable{}, fmt.Errorf("rank %s: threshold %d outside 0..100", th.Label, th.MinPercent)
		}
		if _, dup := seen[th.MinPercent]; dup {
			return RankTable{}, fmt.Errorf("duplicate rank threshold %d", th.MinPercent)
		}
		seen[th.MinPercent] = struct{}{}
	}
	if out[len(out)-1].MinPercent != 0 {
		return RankTable{}, fmt.Errorf("rank table must include a 0 threshold")
	}
	return RankTable{thresholds: out}, nil
}

// ParseRankTable reads "S:100,A:67,B:34,C:0".
func ParseRankTable(raw string) (RankTable, error) {
	var thresholds []Threshold
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, value, ok := strings.Cut(part, ":")
		if !ok {
			return RankTable{}, fmt.Errorf("rank entry %q: want LABEL:PERCENT", part)
		}
		pct, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return RankTable{}, fmt.Errorf("rank entry %q: %w", part, err)
		}
		thresholds = append(thresholds, Threshold{Label: strings.TrimSpace(label), MinPercent: pct})
	}
	return NewRankTable(thresholds)
}

// Rank returns the label of the first threshold the percentage reaches.
func (t RankTable) Rank(percentage int) string {
	if len(t.thresholds) == 0 {
		t = DefaultRankTable()
	}
	for _, th := range t.thresholds {
		if percentage >= th.MinPercent {
			return th.Label
		}
	}
	return t.thresholds[len(t.thresholds)-1].Label
}

// Thresholds returns a copy of the ordered thresholds.
func (t RankTable) Thresholds() []Threshold {
	return append([]Threshold(nil), t.thresholds...)
}

// Outcome is the qualitative result of a graded submission.
type Outcome struct {
	Passed bool   `json:"passed"`
	Rank   string `json:"rank"`
}

// Evaluate derives pass/fail and rank. A passingScore of zero or less means
// every submission passes.
func Evaluate(result GradedResult, passingScore int, table RankTable) Outcome {
	return Outcome{
		Passed: result.Percentage >= passingScore,
		Rank:   table.Rank(result.Percentage),
	}
}
