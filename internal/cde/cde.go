// Package cde ranks columns by how critical they are to the business, based
// on completeness, cardinality and naming.
package cde

import (
	"errors"
	"sort"
	"strings"

	"github.com/KaramelBytes/dqlens-cli/internal/analysis"
	"github.com/KaramelBytes/dqlens-cli/internal/utils"
)

// ErrProfileMissing is returned when identification runs before profiling.
var ErrProfileMissing = errors.New("dataset profile missing")

// Reason explains why a column was selected.
type Reason string

const (
	ReasonIDLike  Reason = "low-null-high-cardinality-id-like"
	ReasonKeyword Reason = "keyword-match-on-name"
	ReasonPolicy  Reason = "policy-referenced"
)

// CDE is a critical data element.
type CDE struct {
	Column  string  `json:"column"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"criticality_score"`
	Reason  Reason  `json:"reason"`
}

// Config holds the scoring weights and thresholds.
type Config struct {
	CompletenessWeight float64  `mapstructure:"completeness_weight" yaml:"completeness_weight" json:"completeness_weight"`
	DistinctWeight     float64  `mapstructure:"distinct_weight" yaml:"distinct_weight" json:"distinct_weight"`
	KeywordWeight      float64  `mapstructure:"keyword_weight" yaml:"keyword_weight" json:"keyword_weight"`
	Threshold          float64  `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	IDRatio            float64  `mapstructure:"id_ratio" yaml:"id_ratio" json:"id_ratio"`
	EnumMax            int      `mapstructure:"enum_max" yaml:"enum_max" json:"enum_max"`
	Vocabulary         []string `mapstructure:"vocabulary" yaml:"vocabulary" json:"vocabulary"`
}

// DefaultConfig returns the stock weights 0.4/0.3/0.3 and threshold 0.5.
func DefaultConfig() Config {
	return Config{
		CompletenessWeight: 0.4,
		DistinctWeight:     0.3,
		KeywordWeight:      0.3,
		Threshold:          0.5,
		IDRatio:            0.95,
		EnumMax:            12,
		Vocabulary: []string{
			"id", "ssn", "email", "phone", "amount", "date", "account", "customer",
			"name", "dob", "balance", "tax", "iban", "zip", "postal",
		},
	}
}

// Identifier selects CDEs from a profile.
type Identifier struct {
	cfg   Config
	vocab map[string]struct{}
}

// New builds an Identifier; vocabulary terms are lower-cased.
func New(cfg Config) *Identifier {
	id := &Identifier{cfg: cfg, vocab: map[string]struct{}{}}
	for _, v := range cfg.Vocabulary {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			id.vocab[v] = struct{}{}
		}
	}
	return id
}

// Identify scores every column and returns those at or above the threshold,
// highest score first, ties by ordinal. policyTerms are lower-case tokens
// taken from the policy document; a column whose name (or a part of it)
// appears there counts as a keyword hit.
func (id *Identifier) Identify(p *analysis.DatasetProfile, policyTerms map[string]struct{}) ([]CDE, error) {
	if p == nil {
		return nil, ErrProfileMissing
	}
	var out []CDE
	for _, c := range p.Columns {
		score, reason := id.score(c, policyTerms)
		if score >= id.cfg.Threshold {
			out = append(out, CDE{Column: c.Name, Ordinal: c.Ordinal, Score: score, Reason: reason})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Ordinal < out[j].Ordinal
	})
	return out, nil
}

func (id *Identifier) score(c analysis.ColumnProfile, policyTerms map[string]struct{}) (float64, Reason) {
	completeness := clamp01(1 - c.NullRatio)
	if c.Kind == analysis.KindEmpty {
		completeness = 0
	}

	distinct := 0.5 * clamp01(c.DistinctRatio)
	switch {
	case c.DistinctRatio >= id.cfg.IDRatio:
		distinct = 1
	case c.DistinctCount > 1 && c.DistinctCount <= id.cfg.EnumMax && c.DistinctRatio < 0.5:
		distinct = 1
	}

	parts := utils.NameTokens(c.Name)
	vocabHit := false
	for _, t := range parts {
		if _, ok := id.vocab[t]; ok {
			vocabHit = true
			break
		}
	}
	policyHit := false
	if len(policyTerms) > 0 {
		if _, ok := policyTerms[strings.ToLower(c.Name)]; ok {
			policyHit = true
		}
		for _, t := range parts {
			if _, ok := policyTerms[t]; ok && len(t) > 2 {
				policyHit = true
			}
		}
	}
	keyword := 0.0
	if vocabHit || policyHit {
		keyword = 1
	}

	score := id.cfg.CompletenessWeight*completeness + id.cfg.DistinctWeight*distinct + id.cfg.KeywordWeight*keyword
	score = clamp01(score)

	reason := ReasonIDLike
	switch {
	case vocabHit:
		reason = ReasonKeyword
	case policyHit:
		reason = ReasonPolicy
	}
	return score, reason
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
