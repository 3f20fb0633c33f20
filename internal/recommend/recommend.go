package recommend

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/KaramelBytes/dqlens-cli/internal/analysis"
	"github.com/KaramelBytes/dqlens-cli/internal/cde"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
)

// Config tunes which rules are proposed.
type Config struct {
	// RangeMargin widens observed numeric bounds by this fraction of the span.
	RangeMargin float64 `mapstructure:"range_margin" yaml:"range_margin" json:"range_margin"`
	// EnumRatio is the distinct ratio below which a column is an enumeration.
	EnumRatio float64 `mapstructure:"enum_ratio" yaml:"enum_ratio" json:"enum_ratio"`
	// UniqueRatio is the distinct ratio at or above which a column is an identifier.
	UniqueRatio float64 `mapstructure:"unique_ratio" yaml:"unique_ratio" json:"unique_ratio"`
	// MaxAllowedValues caps the size of a recommended allowed_values set.
	MaxAllowedValues int `mapstructure:"max_allowed_values" yaml:"max_allowed_values" json:"max_allowed_values"`
}

func DefaultConfig() Config {
	return Config{RangeMargin: 0, EnumRatio: 0.2, UniqueRatio: 0.99, MaxAllowedValues: 50}
}

// Recommender proposes rules for critical data elements.
type Recommender struct {
	cfg Config
}

func New(cfg Config) *Recommender { return &Recommender{cfg: cfg} }

type format struct {
	name    string
	pattern string
	re      *regexp.Regexp
}

// knownFormats are tried in order; the first one every sample matches wins.
var knownFormats = func() []format {
	fs := []format{
		{name: "uuid", pattern: `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`},
		{name: "email", pattern: `[^@\s]+@[^@\s]+\.[^@\s]+`},
		{name: "iso date", pattern: `\d{4}-\d{2}-\d{2}`},
		{name: "digits", pattern: `\d+`},
	}
	for i := range fs {
		fs[i].re = regexp.MustCompile(`^(?:` + fs[i].pattern + `)$`)
	}
	return fs
}()

// Recommend returns one to three enabled, recommended rules for c. Rule ids
// are derived from column and kind so repeated runs yield the same ids.
func (r *Recommender) Recommend(c cde.CDE, col analysis.ColumnProfile) []rules.Rule {
	var out []rules.Rule
	add := func(kind rules.Kind, p rules.Params, desc string) {
		out = append(out, rules.Rule{
			ID:          rules.RecommendedID(c.Column, kind),
			Column:      c.Column,
			Kind:        kind,
			Params:      p,
			Origin:      rules.OriginRecommended,
			Enabled:     true,
			Description: desc,
		})
	}

	if col.NullRatio > 0 {
		add(rules.KindNotNull, rules.Params{}, fmt.Sprintf("%.1f%% of values are missing", col.NullRatio*100))
	}

	switch col.Kind {
	case analysis.KindNumeric:
		if col.Min != nil && col.Max != nil {
			lo, hi := r.widen(*col.Min, *col.Max)
			add(rules.KindRange, rules.Params{Min: &lo, Max: &hi}, "observed numeric bounds")
		}
		if col.DistinctRatio >= r.cfg.UniqueRatio && col.DistinctCount > 1 {
			add(rules.KindUnique, rules.Params{}, "identifier-like column")
		}
	case analysis.KindDatetime:
		if col.MinTime != nil && col.MaxTime != nil {
			add(rules.KindRange, rules.Params{MinDate: formatDate(*col.MinTime), MaxDate: formatDate(*col.MaxTime)}, "observed date bounds")
		}
	case analysis.KindCategorical, analysis.KindText, analysis.KindBoolean:
		switch {
		case col.DistinctRatio < r.cfg.EnumRatio && !col.DistinctTruncated &&
			len(col.DistinctValues) > 0 && len(col.DistinctValues) <= r.cfg.MaxAllowedValues:
			vals := append([]string(nil), col.DistinctValues...)
			add(rules.KindAllowedValues, rules.Params{Values: vals}, "observed value set")
		case col.DistinctRatio >= r.cfg.UniqueRatio:
			add(rules.KindUnique, rules.Params{}, "identifier-like column")
		default:
			if f, ok := detectFormat(col.Samples); ok {
				add(rules.KindRegex, rules.Params{Pattern: f.pattern}, f.name+" format")
			}
		}
	}

	if len(out) == 0 {
		add(rules.KindNotNull, rules.Params{}, "critical column must be populated")
	}
	return out
}

func (r *Recommender) widen(lo, hi float64) (float64, float64) {
	if r.cfg.RangeMargin <= 0 {
		return lo, hi
	}
	span := hi - lo
	if span == 0 {
		span = math.Abs(lo)
	}
	m := span * r.cfg.RangeMargin
	return lo - m, hi + m
}

func formatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

func detectFormat(samples []string) (format, bool) {
	if len(samples) == 0 {
		return format{}, false
	}
	for _, f := range knownFormats {
		all := true
		for _, s := range samples {
			if !f.re.MatchString(s) {
				all = false
				break
			}
		}
		if all {
			return f, true
		}
	}
	return format{}, false
}
