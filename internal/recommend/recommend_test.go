package recommend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dqlens-cli/internal/analysis"
	"github.com/KaramelBytes/dqlens-cli/internal/cde"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
)

func fp(v float64) *float64 { return &v }

func kinds(rs []rules.Rule) []rules.Kind {
	out := make([]rules.Kind, len(rs))
	for i, r := range rs {
		out[i] = r.Kind
	}
	return out
}

func TestRecommend(t *testing.T) {
	t.Parallel()

	d1 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		col   analysis.ColumnProfile
		kinds []rules.Kind
		check func(t *testing.T, rs []rules.Rule)
	}{
		{
			name:  "numeric with nulls",
			col:   analysis.ColumnProfile{Name: "age", Kind: analysis.KindNumeric, NullRatio: 0.25, DistinctRatio: 1, DistinctCount: 3, Min: fp(25), Max: fp(200)},
			kinds: []rules.Kind{rules.KindNotNull, rules.KindRange, rules.KindUnique},
			check: func(t *testing.T, rs []rules.Rule) {
				assert.Equal(t, 25.0, *rs[1].Params.Min)
				assert.Equal(t, 200.0, *rs[1].Params.Max)
			},
		},
		{
			name:  "datetime",
			col:   analysis.ColumnProfile{Name: "signup", Kind: analysis.KindDatetime, DistinctRatio: 0.5, MinTime: &d1, MaxTime: &d2},
			kinds: []rules.Kind{rules.KindRange},
			check: func(t *testing.T, rs []rules.Rule) {
				assert.Equal(t, "2024-01-03", rs[0].Params.MinDate)
				assert.Equal(t, "2024-05-30", rs[0].Params.MaxDate)
			},
		},
		{
			name:  "enumeration",
			col:   analysis.ColumnProfile{Name: "segment", Kind: analysis.KindCategorical, DistinctRatio: 0.03, DistinctValues: []string{"retail", "sme"}},
			kinds: []rules.Kind{rules.KindAllowedValues},
			check: func(t *testing.T, rs []rules.Rule) {
				assert.Equal(t, []string{"retail", "sme"}, rs[0].Params.Values)
			},
		},
		{
			name:  "identifier text",
			col:   analysis.ColumnProfile{Name: "email", Kind: analysis.KindCategorical, NullRatio: 0.1, DistinctRatio: 1, Samples: []string{"a@x.io"}},
			kinds: []rules.Kind{rules.KindNotNull, rules.KindUnique},
		},
		{
			name:  "format regex",
			col:   analysis.ColumnProfile{Name: "contact", Kind: analysis.KindText, DistinctRatio: 0.6, Samples: []string{"a@x.io", "b@y.org"}},
			kinds: []rules.Kind{rules.KindRegex},
			check: func(t *testing.T, rs []rules.Rule) {
				re, err := rules.CompilePattern(rs[0].Params.Pattern)
				require.NoError(t, err)
				assert.True(t, re.MatchString("c@z.com"))
				assert.False(t, re.MatchString("not an email"))
			},
		},
		{
			name:  "fallback",
			col:   analysis.ColumnProfile{Name: "notes", Kind: analysis.KindText, DistinctRatio: 0.6, Samples: []string{"hello", "world"}},
			kinds: []rules.Kind{rules.KindNotNull},
		},
	}
	rec := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rs := rec.Recommend(cde.CDE{Column: tt.col.Name}, tt.col)
			require.Equal(t, tt.kinds, kinds(rs))
			assert.LessOrEqual(t, len(rs), 3)
			for _, r := range rs {
				assert.Equal(t, rules.OriginRecommended, r.Origin)
				assert.True(t, r.Enabled)
				assert.Equal(t, rules.RecommendedID(tt.col.Name, r.Kind), r.ID)
				require.NoError(t, r.Validate())
			}
			if tt.check != nil {
				tt.check(t, rs)
			}
		})
	}
}

func TestRecommendRangeMargin(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RangeMargin = 0.1
	rs := New(cfg).Recommend(cde.CDE{Column: "x"}, analysis.ColumnProfile{Name: "x", Kind: analysis.KindNumeric, DistinctRatio: 0.5, Min: fp(0), Max: fp(100)})
	require.Len(t, rs, 1)
	assert.InDelta(t, -10, *rs[0].Params.Min, 1e-9)
	assert.InDelta(t, 110, *rs[0].Params.Max, 1e-9)
}

func TestRecommendIsDeterministic(t *testing.T) {
	t.Parallel()

	col := analysis.ColumnProfile{Name: "age", Kind: analysis.KindNumeric, NullRatio: 0.25, Min: fp(1), Max: fp(2)}
	a := New(DefaultConfig()).Recommend(cde.CDE{Column: "age"}, col)
	b := New(DefaultConfig()).Recommend(cde.CDE{Column: "age"}, col)
	assert.Equal(t, a, b)
}
