package compliance

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/KaramelBytes/dqlens-cli/internal/rules"
	"github.com/KaramelBytes/dqlens-cli/internal/utils"
)

// Config tunes requirement extraction and scoring.
type Config struct {
	// Threshold is the rule score at which a requirement counts as met.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	// MinTokens drops spans with fewer word tokens.
	MinTokens int `mapstructure:"min_tokens" yaml:"min_tokens" json:"min_tokens"`
	// StopWords extends the built-in stop word list.
	StopWords []string `mapstructure:"stop_words" yaml:"stop_words" json:"stop_words"`
}

func DefaultConfig() Config {
	return Config{Threshold: 0.95, MinTokens: 4}
}

// Requirement is one policy sentence and the rules that cover it.
type Requirement struct {
	Index        int      `json:"index"`
	Text         string   `json:"text"`
	MatchedRules []string `json:"matched_rules"`
	BestRuleID   string   `json:"best_rule_id,omitempty"`
	BestScore    *float64 `json:"best_score,omitempty"`
	Score        float64  `json:"score"`
}

// Report is the outcome of one compliance check.
type Report struct {
	Requirements []Requirement `json:"requirements"`
	// Score is the mean requirement score; nil when the policy yields no
	// requirements.
	Score     *float64 `json:"score"`
	Matched   int      `json:"matched"`
	Threshold float64  `json:"threshold"`
}

// Mapper maps policy text to rule coverage.
type Mapper struct {
	cfg  Config
	stop map[string]struct{}
}

func New(cfg Config) *Mapper {
	m := &Mapper{cfg: cfg, stop: make(map[string]struct{}, len(stopWords)+len(cfg.StopWords))}
	for _, w := range stopWords {
		m.stop[w] = struct{}{}
	}
	for _, w := range cfg.StopWords {
		m.stop[utils.Fold(strings.TrimSpace(w))] = struct{}{}
	}
	return m
}

// synonyms tie policy vocabulary to rule kinds. They never match on their
// own; they pick which of a mentioned column's rules a requirement is about.
var synonyms = map[rules.Kind][]string{
	rules.KindNotNull:          {"required", "mandatory", "missing", "populated", "present", "blank", "empty", "include", "complete"},
	rules.KindUnique:           {"duplicate", "duplicates", "distinct", "unique", "identifier"},
	rules.KindRange:            {"between", "minimum", "maximum", "exceed", "least", "most", "range", "limit"},
	rules.KindRegex:            {"format", "pattern", "valid", "formatted", "well"},
	rules.KindAllowedValues:    {"permitted", "allowed", "valid", "approved", "list", "codes"},
	rules.KindCustomExpression: {"condition", "consistent", "when"},
}

type ruleTerms struct {
	rule     rules.Rule
	column   map[string]struct{} // column name and its parts
	kind     map[string]struct{} // kind name parts
	literals map[string]struct{} // parameter literals
	syn      map[string]struct{}
}

type hit struct {
	column, kind, literal, synonym bool
}

func (h hit) matched() bool  { return h.column || h.kind || h.literal }
func (h hit) specific() bool { return h.kind || h.literal || h.synonym }

func (rt ruleTerms) hits(toks map[string]struct{}) hit {
	var h hit
	for t := range toks {
		if _, ok := rt.column[t]; ok {
			h.column = true
		}
		if _, ok := rt.kind[t]; ok {
			h.kind = true
		}
		if _, ok := rt.literals[t]; ok {
			h.literal = true
		}
		if _, ok := rt.syn[t]; ok {
			h.synonym = true
		}
	}
	return h
}

// matchRules returns the rules a requirement covers. A rule matches on
// a shared column, kind or literal token. When a requirement names a column
// and evokes the kind of some of that column's rules, the column's other
// rules are dropped.
func matchRules(toks map[string]struct{}, terms []ruleTerms) []ruleTerms {
	hits := make([]hit, len(terms))
	narrowed := map[string]bool{}
	for i, rt := range terms {
		hits[i] = rt.hits(toks)
		if hits[i].column && hits[i].specific() {
			narrowed[rt.rule.Column] = true
		}
	}
	var out []ruleTerms
	for i, rt := range terms {
		h := hits[i]
		if !h.matched() {
			continue
		}
		if narrowed[rt.rule.Column] && !h.specific() {
			continue
		}
		out = append(out, rt)
	}
	return out
}

// Check splits policy into requirements and scores each against the enabled
// rules in store. ruleScores maps rule id to its latest quality score; rules
// without a score count as matched but unscored.
func (m *Mapper) Check(store *rules.Store, policy string, ruleScores map[string]float64) *Report {
	rep := &Report{Threshold: m.cfg.Threshold}
	var terms []ruleTerms
	if store != nil {
		for _, r := range store.ListEnabled() {
			terms = append(terms, m.termsFor(r))
		}
	}
	var sum float64
	for i, span := range m.Requirements(policy) {
		req := Requirement{Index: i, Text: span, MatchedRules: []string{}}
		toks := m.significant(span)
		for _, rt := range matchRules(toks, terms) {
			req.MatchedRules = append(req.MatchedRules, rt.rule.ID)
			if s, ok := ruleScores[rt.rule.ID]; ok {
				if req.BestScore == nil || s > *req.BestScore || (s == *req.BestScore && rt.rule.ID < req.BestRuleID) {
					v := s
					req.BestScore = &v
					req.BestRuleID = rt.rule.ID
				}
			}
		}
		sort.Strings(req.MatchedRules)
		req.Score = m.score(req.BestScore)
		if len(req.MatchedRules) > 0 {
			rep.Matched++
		}
		sum += req.Score
		rep.Requirements = append(rep.Requirements, req)
	}
	if n := len(rep.Requirements); n > 0 {
		mean := sum / float64(n)
		rep.Score = &mean
	}
	return rep
}

func (m *Mapper) score(best *float64) float64 {
	switch {
	case best == nil:
		return 0
	case *best >= m.cfg.Threshold:
		return 1
	default:
		return *best
	}
}

// Requirements splits policy text into candidate requirement spans.
func (m *Mapper) Requirements(policy string) []string {
	minTokens := m.cfg.MinTokens
	if minTokens <= 0 {
		minTokens = 1
	}
	var out []string
	for _, span := range splitSpans(policy) {
		if utils.CountWords(span) >= minTokens {
			out = append(out, span)
		}
	}
	return out
}

// splitSpans cuts on newlines and after '.', '!', '?' or ';' when followed
// by whitespace or end of text.
func splitSpans(text string) []string {
	rs := []rune(strings.ReplaceAll(text, "\r\n", "\n"))
	var (
		out   []string
		start int
	)
	cut := func(end int) {
		if s := strings.TrimSpace(string(rs[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range rs {
		switch r {
		case '\n':
			cut(i)
			start = i + 1
		case '.', '!', '?', ';':
			if i+1 == len(rs) || unicode.IsSpace(rs[i+1]) {
				cut(i + 1)
			}
		}
	}
	if start < len(rs) {
		cut(len(rs))
	}
	return out
}

// PolicyTerms returns the significant tokens of a policy; the CDE identifier
// uses them to flag columns the policy talks about.
func (m *Mapper) PolicyTerms(policy string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, span := range m.Requirements(policy) {
		for t := range m.significant(span) {
			out[t] = struct{}{}
		}
	}
	return out
}

func (m *Mapper) significant(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range utils.Words(text) {
		if m.keep(w) {
			out[w] = struct{}{}
		}
	}
	return out
}

func (m *Mapper) keep(w string) bool {
	if len([]rune(w)) < 2 {
		return false
	}
	_, stop := m.stop[w]
	return !stop
}

func (m *Mapper) termsFor(r rules.Rule) ruleTerms {
	rt := ruleTerms{
		rule:     r,
		column:   map[string]struct{}{},
		kind:     map[string]struct{}{},
		literals: map[string]struct{}{},
		syn:      map[string]struct{}{},
	}
	add := func(set map[string]struct{}, words ...string) {
		for _, w := range words {
			if m.keep(w) {
				set[w] = struct{}{}
			}
		}
	}

	add(rt.column, utils.Fold(strings.TrimSpace(r.Column)))
	add(rt.column, utils.NameTokens(r.Column)...)
	add(rt.kind, utils.Words(strings.ReplaceAll(string(r.Kind), "_", " "))...)
	add(rt.syn, synonyms[r.Kind]...)

	p := r.Params
	for _, v := range p.Values {
		add(rt.literals, utils.Words(v)...)
	}
	if p.Min != nil {
		add(rt.literals, utils.Words(fmt.Sprintf("%g", *p.Min))...)
	}
	if p.Max != nil {
		add(rt.literals, utils.Words(fmt.Sprintf("%g", *p.Max))...)
	}
	add(rt.literals, utils.Words(p.MinDate)...)
	add(rt.literals, utils.Words(p.MaxDate)...)
	for _, w := range utils.Words(p.Pattern) {
		// regex escapes such as \d and \s leave single letters behind
		if len([]rune(w)) > 2 {
			add(rt.literals, w)
		}
	}
	return rt
}

var stopWords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "below", "both", "but", "by",
	"can", "could", "did", "do", "does", "doing", "down", "during",
	"each", "every", "few", "for", "from", "further",
	"had", "has", "have", "having", "he", "her", "here", "hers", "him", "his", "how",
	"if", "in", "into", "is", "it", "its", "itself",
	"may", "me", "more", "must", "my", "no", "nor", "not", "of", "off", "on", "once", "only", "or", "other",
	"our", "ours", "out", "over", "own",
	"same", "shall", "she", "should", "so", "some", "such",
	"than", "that", "the", "their", "them", "then", "there", "these", "they", "this", "those", "through", "to", "too",
	"under", "until", "up", "very", "was", "we", "were", "what", "where", "which", "while", "who", "whom", "why",
	"will", "with", "would", "you", "your",
	"data", "record", "records", "value", "values", "field", "fields", "column", "columns",
}
