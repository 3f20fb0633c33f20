package dashboard

import (
	"sort"

	"github.com/KaramelBytes/dqlens-cli/internal/cde"
	"github.com/KaramelBytes/dqlens-cli/internal/compliance"
	"github.com/KaramelBytes/dqlens-cli/internal/engine"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
)

// DefaultTopN is the number of lowest-scoring columns reported.
const DefaultTopN = 5

// Input is everything the dashboard folds over. Nil members are treated as
// not yet computed.
type Input struct {
	CDEs         []cde.CDE
	EnabledRules int
	Result       *engine.Result
	Compliance   *compliance.Report
	// Ordinals orders tied column scores; unknown columns sort by name.
	Ordinals map[string]int
	TopN     int
}

// ColumnScore is one entry of the lowest-quality list.
type ColumnScore struct {
	Column string  `json:"column"`
	Score  float64 `json:"score"`
}

// Summary is the dashboard record.
type Summary struct {
	TotalCDEs        int                    `json:"total_cdes"`
	EnabledRules     int                    `json:"enabled_rules"`
	ScoredColumns    int                    `json:"scored_columns"`
	MeanQuality      *float64               `json:"mean_quality"`
	DatasetQuality   *float64               `json:"dataset_quality"`
	MeanCompliance   *float64               `json:"mean_compliance"`
	Requirements     int                    `json:"requirements"`
	MatchedReqs      int                    `json:"matched_requirements"`
	IssuesBySeverity map[rules.Severity]int `json:"issues_by_severity"`
	TotalIssues      int                    `json:"total_issues"`
	LowestColumns    []ColumnScore          `json:"lowest_columns"`
}

// Summarize folds the current artifacts into a Summary.
func Summarize(in Input) Summary {
	s := Summary{
		TotalCDEs:        len(in.CDEs),
		EnabledRules:     in.EnabledRules,
		IssuesBySeverity: map[rules.Severity]int{rules.SeverityWarning: 0, rules.SeverityError: 0},
		LowestColumns:    []ColumnScore{},
	}
	if r := in.Result; r != nil {
		s.IssuesBySeverity = r.IssueCounts()
		s.TotalIssues = len(r.Issues)
		s.DatasetQuality = r.DatasetScore
		s.ScoredColumns = len(r.ColumnScores)
		if mean, ok := engine.MeanScore(r.ColumnScores); ok {
			s.MeanQuality = &mean
		}
		s.LowestColumns = lowest(r.ColumnScores, in.Ordinals, in.TopN)
	}
	if c := in.Compliance; c != nil {
		s.MeanCompliance = c.Score
		s.Requirements = len(c.Requirements)
		s.MatchedReqs = c.Matched
	}
	return s
}

func lowest(scores map[string]float64, ordinals map[string]int, n int) []ColumnScore {
	if n <= 0 {
		n = DefaultTopN
	}
	out := make([]ColumnScore, 0, len(scores))
	for c, v := range scores {
		out = append(out, ColumnScore{Column: c, Score: v})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		ai, aok := ordinals[a.Column]
		bi, bok := ordinals[b.Column]
		switch {
		case aok && bok && ai != bi:
			return ai < bi
		case aok != bok:
			return aok
		}
		return a.Column < b.Column
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
