package analysis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
)

// Kind is the inferred semantic type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindBoolean     Kind = "boolean"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
	KindEmpty       Kind = "empty"
)

// Options controls profiling behavior.
type Options struct {
	// SampleValues bounds ColumnProfile.Samples.
	SampleValues int `json:"sample_values" yaml:"sample_values"`
	// MaxDistinct bounds ColumnProfile.DistinctValues; larger sets are truncated.
	MaxDistinct int `json:"max_distinct" yaml:"max_distinct"`
	// TopValues bounds the frequency table kept for categorical columns.
	TopValues int `json:"top_values" yaml:"top_values"`
	// OutlierThreshold is the robust |z| cutoff (MAD based).
	OutlierThreshold float64 `json:"outlier_threshold" yaml:"outlier_threshold"`
}

// DefaultOptions returns reasonable defaults for dataset profiling.
func DefaultOptions() Options {
	return Options{SampleValues: 10, MaxDistinct: 100, TopValues: 8, OutlierThreshold: 3.5}
}

// DatasetProfile holds per-column statistics for one dataset.
type DatasetProfile struct {
	Name     string          `json:"name"`
	Rows     int             `json:"rows"`
	Columns  []ColumnProfile `json:"columns"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ColumnProfile captures inferred type and statistics per column.
type ColumnProfile struct {
	Name          string  `json:"name"`
	Ordinal       int     `json:"ordinal"`
	Kind          Kind    `json:"kind"`
	Unit          string  `json:"unit,omitempty"`
	Rows          int     `json:"rows"`
	NullCount     int     `json:"null_count"`
	NullRatio     float64 `json:"null_ratio"`
	DistinctCount int     `json:"distinct_count"`
	DistinctRatio float64 `json:"distinct_ratio"`
	// Samples are the first distinct non-null values in row order.
	Samples []string `json:"samples,omitempty"`
	// DistinctValues is the sorted distinct set, omitted past MaxDistinct.
	DistinctValues    []string `json:"distinct_values,omitempty"`
	DistinctTruncated bool     `json:"distinct_truncated,omitempty"`
	// Numeric stats
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Mean float64  `json:"mean,omitempty"`
	Std  float64  `json:"std,omitempty"`
	// Datetime bounds
	MinTime *time.Time `json:"min_time,omitempty"`
	MaxTime *time.Time `json:"max_time,omitempty"`
	// Outliers (robust Z via MAD)
	OutliersCount    int     `json:"outliers_count,omitempty"`
	OutliersMaxAbsZ  float64 `json:"outliers_max_abs_z,omitempty"`
	OutlierThreshold float64 `json:"outlier_threshold,omitempty"`
	// Categorical top values
	TopValues []CategoryCount `json:"top_values,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Column looks up a column profile by name.
func (p *DatasetProfile) Column(name string) (*ColumnProfile, bool) {
	if p == nil {
		return nil, false
	}
	for i := range p.Columns {
		if p.Columns[i].Name == name {
			return &p.Columns[i], true
		}
	}
	return nil, false
}

// Profile computes a DatasetProfile in a single pass per column.
func Profile(ds *dataset.Dataset, opt Options) *DatasetProfile {
	def := DefaultOptions()
	if opt.SampleValues <= 0 {
		opt.SampleValues = def.SampleValues
	}
	if opt.MaxDistinct <= 0 {
		opt.MaxDistinct = def.MaxDistinct
	}
	if opt.TopValues <= 0 {
		opt.TopValues = def.TopValues
	}
	if opt.OutlierThreshold <= 0 {
		opt.OutlierThreshold = def.OutlierThreshold
	}
	p := &DatasetProfile{Name: ds.Name, Rows: ds.Rows(), Columns: make([]ColumnProfile, 0, len(ds.Columns))}
	p.Warnings = append(p.Warnings, ds.Warnings...)
	for i := range ds.Columns {
		p.Columns = append(p.Columns, profileColumn(i, &ds.Columns[i], opt))
	}
	return p
}

type colAcc struct {
	// numeric stats via Welford
	n    int
	mean float64
	m2   float64
	min  float64
	max  float64
	nums []float64

	minT, maxT time.Time
	numCnt     int
	dtCnt      int
	boolCnt    int
	txtCnt     int
	longText   int
	cats       map[string]int
	seen       map[string]struct{}
}

func profileColumn(ordinal int, col *dataset.Column, opt Options) ColumnProfile {
	_, unit := splitUnits(col.Name)
	cp := ColumnProfile{Name: col.Name, Ordinal: ordinal, Unit: unit, Rows: len(col.Values)}
	c := &colAcc{min: math.Inf(1), max: math.Inf(-1), cats: map[string]int{}, seen: map[string]struct{}{}}

	for _, v := range col.Values {
		if v.IsBlank() {
			cp.NullCount++
			continue
		}
		key := v.Key()
		if _, ok := c.seen[key]; !ok {
			c.seen[key] = struct{}{}
			if len(cp.Samples) < opt.SampleValues {
				cp.Samples = append(cp.Samples, v.Text())
			}
		}
		switch v.Kind {
		case dataset.KindNumber:
			x := v.Num
			c.numCnt++
			c.n++
			if x < c.min {
				c.min = x
			}
			if x > c.max {
				c.max = x
			}
			delta := x - c.mean
			c.mean += delta / float64(c.n)
			c.m2 += delta * (x - c.mean)
			c.nums = append(c.nums, x)
		case dataset.KindBool:
			c.boolCnt++
			c.cats[v.Text()]++
		case dataset.KindString:
			s := strings.TrimSpace(v.Str)
			if t, ok := dataset.ParseTime(s); ok {
				c.dtCnt++
				if c.minT.IsZero() || t.Before(c.minT) {
					c.minT = t
				}
				if c.maxT.IsZero() || t.After(c.maxT) {
					c.maxT = t
				}
				continue
			}
			c.txtCnt++
			if len(s) > 64 {
				c.longText++
			}
			if len(c.cats) <= 10000 { // guard memory
				c.cats[s]++
			}
		}
	}

	nonNull := cp.Rows - cp.NullCount
	if cp.Rows > 0 {
		cp.NullRatio = float64(cp.NullCount) / float64(cp.Rows)
	}
	cp.DistinctCount = len(c.seen)
	if nonNull > 0 {
		cp.DistinctRatio = float64(cp.DistinctCount) / float64(nonNull)
	}
	if cp.DistinctCount <= opt.MaxDistinct {
		cp.DistinctValues = distinctTexts(col.Values)
	} else {
		cp.DistinctTruncated = true
	}

	// Decide kind by predominant parsed type
	switch {
	case nonNull == 0:
		cp.Kind = KindEmpty
	case c.numCnt >= c.dtCnt && c.numCnt >= c.txtCnt && c.numCnt >= c.boolCnt:
		cp.Kind = KindNumeric
		lo, hi := c.min, c.max
		cp.Min, cp.Max = &lo, &hi
		cp.Mean = c.mean
		if c.n > 1 {
			cp.Std = math.Sqrt(c.m2 / float64(c.n-1))
		}
		if len(c.nums) >= 8 {
			cp.OutliersCount, cp.OutliersMaxAbsZ = countOutliers(c.nums, opt.OutlierThreshold)
			cp.OutlierThreshold = opt.OutlierThreshold
		}
	case c.dtCnt >= c.txtCnt && c.dtCnt >= c.boolCnt:
		cp.Kind = KindDatetime
		lo, hi := c.minT, c.maxT
		cp.MinTime, cp.MaxTime = &lo, &hi
	case c.boolCnt >= c.txtCnt:
		cp.Kind = KindBoolean
		cp.TopValues = topValues(c.cats, opt.TopValues)
	case c.longText == 0 && (cp.DistinctCount <= 50 || cp.DistinctRatio <= 0.5):
		cp.Kind = KindCategorical
		cp.TopValues = topValues(c.cats, opt.TopValues)
	default:
		cp.Kind = KindText
	}
	return cp
}

func distinctTexts(vals []dataset.Value) []string {
	set := map[string]struct{}{}
	for _, v := range vals {
		if v.IsBlank() {
			continue
		}
		set[v.Text()] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func topValues(cats map[string]int, n int) []CategoryCount {
	tops := make([]CategoryCount, 0, len(cats))
	for k, v := range cats {
		tops = append(tops, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > n {
		tops = tops[:n]
	}
	return tops
}

func countOutliers(vals []float64, thr float64) (int, float64) {
	median, mad := medianMAD(vals)
	if mad == 0 {
		return 0, 0
	}
	var cnt int
	maxAbsZ := 0.0
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - median) / mad)
		if az > thr {
			cnt++
		}
		if az > maxAbsZ {
			maxAbsZ = az
		}
	}
	return cnt, maxAbsZ
}

// Markdown renders a compact profile suitable for terminals or standalone docs.
func (p *DatasetProfile) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if p.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", p.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", p.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(p.Columns)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range p.Columns {
		name := safeName(c.Name)
		if c.Unit != "" {
			clean, _ := splitUnits(c.Name)
			name = fmt.Sprintf("%s [%s]", safeName(clean), c.Unit)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (nulls %.1f%%, distinct %d)", name, c.Kind, c.NullRatio*100, c.DistinctCount))
		switch c.Kind {
		case KindNumeric:
			b.WriteString(fmt.Sprintf(" - min %.4g, max %.4g, mean %.4g, std %.4g", *c.Min, *c.Max, c.Mean, c.Std))
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
				if c.OutliersMaxAbsZ > 0 {
					b.WriteString(fmt.Sprintf(" (max |z|≈%.2f)", c.OutliersMaxAbsZ))
				}
			}
		case KindDatetime:
			b.WriteString(fmt.Sprintf(" - from %s to %s", c.MinTime.Format("2006-01-02"), c.MaxTime.Format("2006-01-02")))
		case KindCategorical, KindBoolean:
			if len(c.TopValues) > 0 {
				b.WriteString(" - top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
			}
		case KindText:
			if len(c.Samples) > 0 {
				b.WriteString(" - e.g., ")
				lim := min(3, len(c.Samples))
				for i, ex := range c.Samples[:lim] {
					if i > 0 {
						b.WriteString(" | ")
					}
					if len(ex) > 80 {
						ex = ex[:77] + "..."
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(p.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range p.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}
func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

var unitPatterns = []struct {
	re   *regexp.Regexp
	pick int
}{
	{regexp.MustCompile(`^(.*)\s*\(([^)]+)\)\s*$`), 2},  // e.g., Alpha (%)
	{regexp.MustCompile(`^(.*)\s*\[([^\]]+)\]\s*$`), 2}, // e.g., Mass [mg/L]
	{regexp.MustCompile(`^(.*?)[_\s-]+(mg/L|g/L|ug/L|°[CF]|EUR|USD|%|ppm|ppb)$`), 2},
}

// splitUnits extracts a unit annotation from a header such as "amount (EUR)".
func splitUnits(name string) (clean string, unit string) {
	s := strings.TrimSpace(name)
	for _, p := range unitPatterns {
		if m := p.re.FindStringSubmatch(s); len(m) >= 3 {
			base := strings.TrimSpace(m[1])
			u := strings.TrimSpace(m[p.pick])
			if base != "" && u != "" {
				return base, u
			}
		}
	}
	return s, ""
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		d := v - median
		if d < 0 {
			d = -d
		}
		dev[i] = d
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
