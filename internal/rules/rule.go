package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
)

var (
	// ErrDuplicateRule is returned when a rule id is reused or when an
	// enabled rule of the same kind already guards the column.
	ErrDuplicateRule = errors.New("duplicate rule")
	// ErrInvalidRuleParameters is returned when a rule's parameters do not
	// fit its kind.
	ErrInvalidRuleParameters = errors.New("invalid rule parameters")
	// ErrRuleNotFound is returned for unknown rule ids.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrRuleEvaluation tags per-row expression failures in issue messages.
	ErrRuleEvaluation = errors.New("rule evaluation failed")
)

// Kind is the closed set of rule kinds.
type Kind string

const (
	KindNotNull          Kind = "not_null"
	KindRange            Kind = "range"
	KindRegex            Kind = "regex"
	KindUnique           Kind = "unique"
	KindAllowedValues    Kind = "allowed_values"
	KindCustomExpression Kind = "custom_expression"
)

// Kinds lists every rule kind in a stable order.
var Kinds = []Kind{KindNotNull, KindRange, KindRegex, KindUnique, KindAllowedValues, KindCustomExpression}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, x := range Kinds {
		if k == x {
			return true
		}
	}
	return false
}

// ParseKind accepts kind names case-insensitively, with '-' or '_'.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRuleParameters, s)
	}
	return k, nil
}

// Origin records who authored a rule.
type Origin string

const (
	OriginRecommended Origin = "recommended"
	OriginUserDefined Origin = "user_defined"
)

// Severity of issues raised by a rule.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Params holds kind-specific parameters. Only the fields relevant to the
// rule's kind are consulted.
type Params struct {
	// range (numeric)
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	// range (dates)
	MinDate string `json:"min_date,omitempty" yaml:"min_date,omitempty"`
	MaxDate string `json:"max_date,omitempty" yaml:"max_date,omitempty"`
	// regex
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	// allowed_values
	Values          []string `json:"values,omitempty" yaml:"values,omitempty"`
	CaseInsensitive bool     `json:"case_insensitive,omitempty" yaml:"case_insensitive,omitempty"`
	// custom_expression
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Rule is a single validation constraint over one column.
type Rule struct {
	ID          string   `json:"id" yaml:"id,omitempty"`
	Column      string   `json:"column" yaml:"column"`
	Kind        Kind     `json:"kind" yaml:"kind"`
	Params      Params   `json:"params" yaml:"params,omitempty"`
	Origin      Origin   `json:"origin" yaml:"origin,omitempty"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Severity    Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// EffectiveSeverity returns the override or the kind's default.
func (r Rule) EffectiveSeverity() Severity {
	if r.Severity != "" {
		return r.Severity
	}
	switch r.Kind {
	case KindNotNull, KindUnique, KindCustomExpression:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// Constraint renders the expected condition for issue reports.
func (r Rule) Constraint() string {
	p := r.Params
	switch r.Kind {
	case KindNotNull:
		return "not null"
	case KindRange:
		if p.MinDate != "" || p.MaxDate != "" {
			return fmt.Sprintf("date in [%s, %s]", orOpen(p.MinDate, "-inf"), orOpen(p.MaxDate, "+inf"))
		}
		return fmt.Sprintf("in [%s, %s]", fmtBound(p.Min, "-inf"), fmtBound(p.Max, "+inf"))
	case KindRegex:
		return fmt.Sprintf("matches /%s/", p.Pattern)
	case KindUnique:
		return "unique"
	case KindAllowedValues:
		c := "one of [" + strings.Join(p.Values, ", ") + "]"
		if p.CaseInsensitive {
			c += " (case-insensitive)"
		}
		return c
	case KindCustomExpression:
		return p.Expression
	default:
		return string(r.Kind)
	}
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %s(%s)", r.Column, r.Kind, r.Constraint())
}

func orOpen(s, open string) string {
	if s == "" {
		return open
	}
	return s
}

func fmtBound(f *float64, open string) string {
	if f == nil {
		return open
	}
	return fmt.Sprintf("%g", *f)
}

// Validate checks the rule's fields and kind-specific parameters.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Column) == "" {
		return fmt.Errorf("%w: column is required", ErrInvalidRuleParameters)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRuleParameters, r.Kind)
	}
	switch r.Origin {
	case "", OriginRecommended, OriginUserDefined:
	default:
		return fmt.Errorf("%w: unknown origin %q", ErrInvalidRuleParameters, r.Origin)
	}
	switch r.Severity {
	case "", SeverityWarning, SeverityError:
	default:
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidRuleParameters, r.Severity)
	}
	p := r.Params
	switch r.Kind {
	case KindNotNull, KindUnique:
		return nil
	case KindRange:
		return validateRange(p)
	case KindRegex:
		if p.Pattern == "" {
			return fmt.Errorf("%w: regex requires a pattern", ErrInvalidRuleParameters)
		}
		if _, err := CompilePattern(p.Pattern); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRuleParameters, err)
		}
		return nil
	case KindAllowedValues:
		if len(p.Values) == 0 {
			return fmt.Errorf("%w: allowed_values requires at least one value", ErrInvalidRuleParameters)
		}
		return nil
	case KindCustomExpression:
		if strings.TrimSpace(p.Expression) == "" {
			return fmt.Errorf("%w: custom_expression requires an expression", ErrInvalidRuleParameters)
		}
		if _, err := CompileExpression(p.Expression); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRuleParameters, err)
		}
		return nil
	}
	return nil
}

func validateRange(p Params) error {
	numeric := p.Min != nil || p.Max != nil
	dates := p.MinDate != "" || p.MaxDate != ""
	switch {
	case numeric && dates:
		return fmt.Errorf("%w: range mixes numeric and date bounds", ErrInvalidRuleParameters)
	case numeric:
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fmt.Errorf("%w: range min %g > max %g", ErrInvalidRuleParameters, *p.Min, *p.Max)
		}
	case dates:
		lo, hi, err := p.DateBounds()
		if err != nil {
			return err
		}
		if !lo.IsZero() && !hi.IsZero() && lo.After(hi) {
			return fmt.Errorf("%w: range min_date after max_date", ErrInvalidRuleParameters)
		}
	default:
		return fmt.Errorf("%w: range requires min and/or max", ErrInvalidRuleParameters)
	}
	return nil
}

// CompilePattern anchors pattern so that it must match the whole value.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`^(?:` + pattern + `)$`)
}

// DateBounds parses MinDate and MaxDate; absent bounds are zero times.
func (p Params) DateBounds() (lo, hi time.Time, err error) {
	if p.MinDate != "" {
		t, ok := dataset.ParseTime(p.MinDate)
		if !ok {
			return lo, hi, fmt.Errorf("%w: cannot parse min_date %q", ErrInvalidRuleParameters, p.MinDate)
		}
		lo = t
	}
	if p.MaxDate != "" {
		t, ok := dataset.ParseTime(p.MaxDate)
		if !ok {
			return lo, hi, fmt.Errorf("%w: cannot parse max_date %q", ErrInvalidRuleParameters, p.MaxDate)
		}
		hi = t
	}
	return lo, hi, nil
}
