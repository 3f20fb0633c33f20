// Package engine evaluates the enabled rule set against a dataset and turns
// the outcome into per-rule and per-column quality scores plus an issue list.
//
// A run is a pure function of the dataset and the rules: the same inputs
// always produce the same scores and the same issues in the same order.
package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"

	"github.com/KaramelBytes/dqlens-cli/internal/cde"
	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
)

// AggregateRow marks issues that concern the whole column rather than a row.
const AggregateRow = -1

// Issue is one failed evaluation.
type Issue struct {
	RuleID   string         `json:"rule_id"`
	Column   string         `json:"column"`
	Row      int            `json:"row"`
	Observed dataset.Value  `json:"observed"`
	Expected string         `json:"expected"`
	Severity rules.Severity `json:"severity"`
	Message  string         `json:"message"`
}

// RuleScore is the pass rate of one rule. Score is nil when no row was
// applicable.
type RuleScore struct {
	RuleID    string     `json:"rule_id"`
	Column    string     `json:"column"`
	Kind      rules.Kind `json:"kind"`
	Passed    int        `json:"passed"`
	Evaluated int        `json:"evaluated"`
	Score     *float64   `json:"score"`
}

// Result is the outcome of one engine run.
type Result struct {
	RuleScores []RuleScore `json:"rule_scores"`
	// ColumnScores holds the mean defined rule score per column. Columns
	// without any defined score are absent.
	ColumnScores map[string]float64 `json:"column_scores"`
	// DatasetScore is the criticality-weighted mean over CDE columns, or the
	// plain mean over scored columns when no CDE has a score.
	DatasetScore *float64  `json:"dataset_score"`
	Issues       []Issue   `json:"issues"`
	Rows         int       `json:"rows"`
	RanAt        time.Time `json:"ran_at"`
}

// Engine runs rule sets. Compiled expressions are cached across runs.
type Engine struct {
	mu       sync.Mutex
	programs map[string]cel.Program
}

func New() *Engine {
	return &Engine{programs: map[string]cel.Program{}}
}

// Run evaluates every enabled rule in store against ds.
func (e *Engine) Run(ds *dataset.Dataset, store *rules.Store, cdes []cde.CDE) *Result {
	res := &Result{ColumnScores: map[string]float64{}, Rows: ds.Rows(), RanAt: time.Now().UTC()}
	var rowCache []map[string]any

	for _, r := range store.ListEnabled() {
		rs := RuleScore{RuleID: r.ID, Column: r.Column, Kind: r.Kind}
		col, ok := ds.Column(r.Column)
		if !ok {
			res.Issues = append(res.Issues, Issue{
				RuleID:   r.ID,
				Column:   r.Column,
				Row:      AggregateRow,
				Expected: r.Constraint(),
				Severity: rules.SeverityError,
				Message:  fmt.Sprintf("column %q not found in dataset", r.Column),
			})
			res.RuleScores = append(res.RuleScores, rs)
			continue
		}
		var issues []Issue
		switch r.Kind {
		case rules.KindNotNull:
			issues = evalNotNull(r, col, &rs)
		case rules.KindRange:
			issues = evalRange(r, col, &rs)
		case rules.KindRegex:
			issues = evalRegex(r, col, &rs)
		case rules.KindUnique:
			issues = evalUnique(r, col, &rs)
		case rules.KindAllowedValues:
			issues = evalAllowed(r, col, &rs)
		case rules.KindCustomExpression:
			if rowCache == nil {
				rowCache = make([]map[string]any, ds.Rows())
				for i := range rowCache {
					rowCache[i] = ds.Row(i)
				}
			}
			issues = e.evalExpression(r, col, rowCache, &rs)
		}
		if rs.Evaluated > 0 {
			s := float64(rs.Passed) / float64(rs.Evaluated)
			rs.Score = &s
		}
		res.RuleScores = append(res.RuleScores, rs)
		res.Issues = append(res.Issues, issues...)
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for _, rs := range res.RuleScores {
		if rs.Score == nil {
			continue
		}
		sums[rs.Column] += *rs.Score
		counts[rs.Column]++
	}
	for c, n := range counts {
		res.ColumnScores[c] = sums[c] / float64(n)
	}
	if s, ok := Aggregate(res.ColumnScores, cdes); ok {
		res.DatasetScore = &s
	}

	sort.SliceStable(res.Issues, func(i, j int) bool {
		if res.Issues[i].RuleID != res.Issues[j].RuleID {
			return res.Issues[i].RuleID < res.Issues[j].RuleID
		}
		return res.Issues[i].Row < res.Issues[j].Row
	})

	zap.L().Debug("engine run complete",
		zap.String("dataset", ds.Name),
		zap.Int("rules", len(res.RuleScores)),
		zap.Int("issues", len(res.Issues)),
	)
	return res
}

// Aggregate computes the dataset score from column scores and CDEs.
func Aggregate(columnScores map[string]float64, cdes []cde.CDE) (float64, bool) {
	var num, den float64
	for _, c := range cdes {
		if s, ok := columnScores[c.Column]; ok && c.Score > 0 {
			num += c.Score * s
			den += c.Score
		}
	}
	if den > 0 {
		return num / den, true
	}
	return MeanScore(columnScores)
}

// MeanScore is the unweighted mean of the column scores, summed in column
// name order so equal inputs give bit-identical results.
func MeanScore(columnScores map[string]float64) (float64, bool) {
	if len(columnScores) == 0 {
		return 0, false
	}
	names := make([]string, 0, len(columnScores))
	for name := range columnScores {
		names = append(names, name)
	}
	sort.Strings(names)
	var sum float64
	for _, name := range names {
		sum += columnScores[name]
	}
	return sum / float64(len(names)), true
}

// IssueCounts tallies issues by severity.
func (r *Result) IssueCounts() map[rules.Severity]int {
	out := map[rules.Severity]int{rules.SeverityWarning: 0, rules.SeverityError: 0}
	for _, is := range r.Issues {
		out[is.Severity]++
	}
	return out
}

// Score returns the score of a rule and whether it is defined.
func (r *Result) Score(ruleID string) (float64, bool) {
	for _, rs := range r.RuleScores {
		if rs.RuleID == ruleID && rs.Score != nil {
			return *rs.Score, true
		}
	}
	return 0, false
}

func fail(r rules.Rule, col *dataset.Column, row int, msg string) Issue {
	return Issue{
		RuleID:   r.ID,
		Column:   col.Name,
		Row:      row,
		Observed: col.Values[row],
		Expected: r.Constraint(),
		Severity: r.EffectiveSeverity(),
		Message:  msg,
	}
}

func evalNotNull(r rules.Rule, col *dataset.Column, rs *RuleScore) []Issue {
	var out []Issue
	for i, v := range col.Values {
		rs.Evaluated++
		if v.IsBlank() {
			out = append(out, fail(r, col, i, "value is missing"))
			continue
		}
		rs.Passed++
	}
	return out
}

func evalRange(r rules.Rule, col *dataset.Column, rs *RuleScore) []Issue {
	p := r.Params
	dates := p.MinDate != "" || p.MaxDate != ""
	lo, hi, err := p.DateBounds()
	if err != nil {
		// validated on Add; treat every applicable row as failed
		dates = true
	}
	var out []Issue
	for i, v := range col.Values {
		if v.IsBlank() {
			continue
		}
		rs.Evaluated++
		if dates {
			if err != nil {
				out = append(out, fail(r, col, i, err.Error()))
				continue
			}
			t, ok := dataset.ParseTime(v.Text())
			if !ok {
				out = append(out, fail(r, col, i, "value is not a date"))
				continue
			}
			if (!lo.IsZero() && t.Before(lo)) || (!hi.IsZero() && t.After(hi)) {
				out = append(out, fail(r, col, i, "date out of range"))
				continue
			}
			rs.Passed++
			continue
		}
		x, ok := v.Float()
		if !ok {
			out = append(out, fail(r, col, i, "value is not numeric"))
			continue
		}
		if (p.Min != nil && x < *p.Min) || (p.Max != nil && x > *p.Max) {
			out = append(out, fail(r, col, i, "value out of range"))
			continue
		}
		rs.Passed++
	}
	return out
}

func evalRegex(r rules.Rule, col *dataset.Column, rs *RuleScore) []Issue {
	re, err := rules.CompilePattern(r.Params.Pattern)
	var out []Issue
	for i, v := range col.Values {
		if v.IsBlank() {
			continue
		}
		rs.Evaluated++
		if err != nil || !re.MatchString(v.Text()) {
			out = append(out, fail(r, col, i, "value does not match pattern"))
			continue
		}
		rs.Passed++
	}
	return out
}

func evalAllowed(r rules.Rule, col *dataset.Column, rs *RuleScore) []Issue {
	set := make(map[string]struct{}, len(r.Params.Values))
	for _, v := range r.Params.Values {
		if r.Params.CaseInsensitive {
			v = strings.ToLower(v)
		}
		set[v] = struct{}{}
	}
	var out []Issue
	for i, v := range col.Values {
		if v.IsBlank() {
			continue
		}
		rs.Evaluated++
		s := v.Text()
		if r.Params.CaseInsensitive {
			s = strings.ToLower(s)
		}
		if _, ok := set[s]; !ok {
			out = append(out, fail(r, col, i, "value not in allowed set"))
			continue
		}
		rs.Passed++
	}
	return out
}

func evalUnique(r rules.Rule, col *dataset.Column, rs *RuleScore) []Issue {
	counts := map[string]int{}
	for _, v := range col.Values {
		if !v.IsBlank() {
			counts[v.Key()]++
		}
	}
	var out []Issue
	for i, v := range col.Values {
		if v.IsBlank() {
			continue
		}
		rs.Evaluated++
		if n := counts[v.Key()]; n > 1 {
			out = append(out, fail(r, col, i, fmt.Sprintf("value occurs %d times", n)))
			continue
		}
		rs.Passed++
	}
	return out
}

func (e *Engine) program(expression string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.programs[expression]; ok {
		return p, nil
	}
	p, err := rules.CompileExpression(expression)
	if err != nil {
		return nil, err
	}
	e.programs[expression] = p
	return p, nil
}

func (e *Engine) evalExpression(r rules.Rule, col *dataset.Column, rows []map[string]any, rs *RuleScore) []Issue {
	prg, compileErr := e.program(r.Params.Expression)
	var out []Issue
	for i, v := range col.Values {
		rs.Evaluated++
		if compileErr != nil {
			is := fail(r, col, i, fmt.Sprintf("%v: %v", rules.ErrRuleEvaluation, compileErr))
			is.Severity = rules.SeverityError
			out = append(out, is)
			continue
		}
		val, _, err := prg.Eval(map[string]any{"value": v.Interface(), "row": rows[i]})
		if err != nil {
			is := fail(r, col, i, fmt.Sprintf("%v: %v", rules.ErrRuleEvaluation, err))
			is.Severity = rules.SeverityError
			out = append(out, is)
			continue
		}
		b, ok := val.Value().(bool)
		if !ok {
			is := fail(r, col, i, fmt.Sprintf("%v: expression returned %s, want bool", rules.ErrRuleEvaluation, val.Type().TypeName()))
			is.Severity = rules.SeverityError
			out = append(out, is)
			continue
		}
		if !b {
			out = append(out, fail(r, col, i, "expression is false"))
			continue
		}
		rs.Passed++
	}
	return out
}
