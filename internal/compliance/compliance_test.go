package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dqlens-cli/internal/rules"
)

func fp(v float64) *float64 { return &v }

func newStore(t *testing.T, rs ...rules.Rule) *rules.Store {
	t.Helper()
	s := rules.NewStore()
	for _, r := range rs {
		_, err := s.Add(r)
		require.NoError(t, err)
	}
	return s
}

func TestEmailPolicyExample(t *testing.T) {
	t.Parallel()

	s := newStore(t, rules.Rule{ID: "email-regex", Column: "email", Kind: rules.KindRegex, Enabled: true, Params: rules.Params{Pattern: `[^@\s]+@[^@\s]+\.[^@\s]+`}})
	policy := "All customer records must include a valid email"
	m := New(DefaultConfig())

	rep := m.Check(s, policy, map[string]float64{"email-regex": 0.8})
	require.Len(t, rep.Requirements, 1)
	req := rep.Requirements[0]
	assert.Equal(t, policy, req.Text)
	assert.Equal(t, []string{"email-regex"}, req.MatchedRules)
	assert.Equal(t, "email-regex", req.BestRuleID)
	assert.InDelta(t, 0.8, req.Score, 1e-9, "partial credit below threshold")
	require.NotNil(t, rep.Score)
	assert.InDelta(t, 0.8, *rep.Score, 1e-9)
	assert.Equal(t, 1, rep.Matched)

	rep = m.Check(s, policy, map[string]float64{"email-regex": 0.97})
	assert.Equal(t, 1.0, rep.Requirements[0].Score)
}

func TestRequirementsSplitting(t *testing.T) {
	t.Parallel()

	m := New(DefaultConfig())
	text := "Section 1.\nEvery account number must be unique across the ledger. Ages must be between 0 and 120; version 1.2 applies to all rows!\r\nShort one.\n\n  Why are phone numbers sometimes missing?"
	got := m.Requirements(text)
	assert.Equal(t, []string{
		"Every account number must be unique across the ledger.",
		"Ages must be between 0 and 120;",
		"version 1.2 applies to all rows!",
		"Why are phone numbers sometimes missing?",
	}, got)
	assert.Equal(t, got, m.Requirements(text), "deterministic")
}

func TestMatching(t *testing.T) {
	t.Parallel()

	s := newStore(t,
		rules.Rule{ID: "r-age", Column: "age", Kind: rules.KindRange, Enabled: true, Params: rules.Params{Min: fp(0), Max: fp(120)}},
		rules.Rule{ID: "r-phone", Column: "phone_number", Kind: rules.KindNotNull, Enabled: true},
		rules.Rule{ID: "r-country", Column: "country", Kind: rules.KindAllowedValues, Enabled: true, Params: rules.Params{Values: []string{"DE", "FR"}}},
		rules.Rule{ID: "r-off", Column: "ledger", Kind: rules.KindUnique},
	)
	m := New(DefaultConfig())
	scores := map[string]float64{"r-age": 1, "r-phone": 0.5, "r-country": 0.9}

	tests := []struct {
		policy string
		want   []string
		score  float64
	}{
		// column name
		{"Customer age is recorded at onboarding time", []string{"r-age"}, 1},
		// parameter literal only
		{"Nobody can be older than 120 years", []string{"r-age"}, 1},
		// column part
		{"A phone is mandatory for every customer", []string{"r-phone"}, 0.5},
		// synonym without column mention does not match
		{"Mandatory disclosures are published yearly", nil, 0},
		// allowed value literal
		{"Only customers in DE are served today", []string{"r-country"}, 0.9},
		// disabled rules never match
		{"The ledger entries are audited weekly", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			rep := m.Check(s, tt.policy, scores)
			require.Len(t, rep.Requirements, 1)
			req := rep.Requirements[0]
			if tt.want == nil {
				assert.Empty(t, req.MatchedRules)
			} else {
				assert.Equal(t, tt.want, req.MatchedRules)
			}
			assert.InDelta(t, tt.score, req.Score, 1e-9)
		})
	}
}

func TestBestMatchAndUnscoredRules(t *testing.T) {
	t.Parallel()

	s := newStore(t,
		rules.Rule{ID: "a", Column: "email", Kind: rules.KindNotNull, Enabled: true},
		rules.Rule{ID: "b", Column: "email", Kind: rules.KindUnique, Enabled: true},
	)
	m := New(DefaultConfig())

	rep := m.Check(s, "Each email address is stored securely", map[string]float64{"a": 0.6, "b": 0.7})
	req := rep.Requirements[0]
	assert.Equal(t, []string{"a", "b"}, req.MatchedRules)
	assert.Equal(t, "b", req.BestRuleID)
	assert.InDelta(t, 0.7, req.Score, 1e-9)

	rep = m.Check(s, "Each email address is stored securely", nil)
	assert.Len(t, rep.Requirements[0].MatchedRules, 2)
	assert.Zero(t, rep.Requirements[0].Score, "matched but unscored")

	// naming the kind narrows the column's rules
	rep = m.Check(s, "Every email address must be unique", map[string]float64{"a": 0.6, "b": 0.7})
	assert.Equal(t, []string{"b"}, rep.Requirements[0].MatchedRules)
	rep = m.Check(s, "An email address is mandatory for customers", map[string]float64{"a": 0.6, "b": 0.7})
	assert.Equal(t, []string{"a"}, rep.Requirements[0].MatchedRules)
	assert.InDelta(t, 0.6, rep.Requirements[0].Score, 1e-9)
}

func TestThresholdMonotonicity(t *testing.T) {
	t.Parallel()

	s := newStore(t,
		rules.Rule{ID: "a", Column: "email", Kind: rules.KindNotNull, Enabled: true},
		rules.Rule{ID: "b", Column: "age", Kind: rules.KindRange, Enabled: true, Params: rules.Params{Max: fp(120)}},
	)
	policy := "Email addresses must always be present.\nAge stays below 120 for all customers.\nNothing here relates to anything known."
	scores := map[string]float64{"a": 0.96, "b": 0.5}

	var prev []float64
	for _, thr := range []float64{0, 0.3, 0.5, 0.9, 0.96, 0.99, 1} {
		cfg := DefaultConfig()
		cfg.Threshold = thr
		rep := New(cfg).Check(s, policy, scores)
		require.Len(t, rep.Requirements, 3)
		cur := make([]float64, 3)
		for i, r := range rep.Requirements {
			cur[i] = r.Score
			assert.GreaterOrEqual(t, r.Score, 0.0)
			assert.LessOrEqual(t, r.Score, 1.0)
		}
		if prev != nil {
			for i := range cur {
				assert.LessOrEqual(t, cur[i], prev[i], "threshold %v requirement %d", thr, i)
			}
		}
		prev = cur
	}
}

func TestEmptyPolicy(t *testing.T) {
	t.Parallel()

	rep := New(DefaultConfig()).Check(rules.NewStore(), "  \n ", nil)
	assert.Empty(t, rep.Requirements)
	assert.Nil(t, rep.Score)
}

func TestPolicyTermsAndExtraStopWords(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.StopWords = []string{"Loyalty"}
	terms := New(cfg).PolicyTerms("The loyalty tier must be recorded for members")
	assert.Contains(t, terms, "tier")
	assert.Contains(t, terms, "members")
	assert.NotContains(t, terms, "loyalty")
	assert.NotContains(t, terms, "the")
}
