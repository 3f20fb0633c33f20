package workspace

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/dqlens-cli/internal/analysis"
	"github.com/KaramelBytes/dqlens-cli/internal/cde"
	"github.com/KaramelBytes/dqlens-cli/internal/compliance"
	"github.com/KaramelBytes/dqlens-cli/internal/dashboard"
	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
	"github.com/KaramelBytes/dqlens-cli/internal/engine"
	"github.com/KaramelBytes/dqlens-cli/internal/recommend"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
)

// Settings bundles the tunables of every pipeline stage.
type Settings struct {
	Profile    analysis.Options
	CDE        cde.Config
	Recommend  recommend.Config
	Compliance compliance.Config
	TopN       int
}

func DefaultSettings() Settings {
	return Settings{
		Profile:    analysis.DefaultOptions(),
		CDE:        cde.DefaultConfig(),
		Recommend:  recommend.DefaultConfig(),
		Compliance: compliance.DefaultConfig(),
		TopN:       dashboard.DefaultTopN,
	}
}

// Observer receives pipeline events. The metrics collector implements it.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveChecks(res *engine.Result)
	ObserveCompliance(rep *compliance.Report)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration)   {}
func (nopObserver) ObserveChecks(*engine.Result)         {}
func (nopObserver) ObserveCompliance(*compliance.Report) {}

// Pipeline stage names reported to the Observer.
const (
	StageProfile    = "profile"
	StageCDE        = "cde"
	StageRecommend  = "recommend"
	StageChecks     = "checks"
	StageCompliance = "compliance"
)

// Analysis is the outcome of a full pipeline run.
type Analysis struct {
	CDEs        []cde.CDE          `json:"cdes"`
	Recommended []rules.Rule       `json:"recommended_rules"`
	Result      *engine.Result     `json:"quality"`
	Compliance  *compliance.Report `json:"compliance"`
}

// Context owns one dataset, its profile, the rule store and the latest
// derived artifacts. Every method runs under a single lock so a dataset
// replacement never interleaves with a scoring pass. Stored artifacts are
// replaced, never mutated.
type Context struct {
	mu  sync.Mutex
	set Settings
	obs Observer

	ident  *cde.Identifier
	rec    *recommend.Recommender
	eng    *engine.Engine
	mapper *compliance.Mapper

	ds      *dataset.Dataset
	profile *analysis.DatasetProfile
	policy  string
	store   *rules.Store

	cdes   []cde.CDE
	result *engine.Result
	report *compliance.Report
}

// NewContext returns an empty context. obs may be nil.
func NewContext(s Settings, obs Observer) *Context {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Context{
		set:    s,
		obs:    obs,
		ident:  cde.New(s.CDE),
		rec:    recommend.New(s.Recommend),
		eng:    engine.New(),
		mapper: compliance.New(s.Compliance),
		store:  rules.NewStore(),
	}
}

// ReplaceDataset swaps in ds, re-profiles it and clears every artifact
// derived from the previous dataset. Rules are kept.
func (c *Context) ReplaceDataset(ds *dataset.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ds = ds
	c.profile = nil
	c.cdes, c.result, c.report = nil, nil, nil
	if ds == nil {
		c.store.SetColumns(nil)
		return
	}
	c.store.SetColumns(ds.Names())
	start := time.Now()
	c.profile = analysis.Profile(ds, c.set.Profile)
	c.obs.ObserveStage(StageProfile, time.Since(start))
	zap.L().Info("dataset replaced", zap.String("dataset", ds.Name), zap.Int("rows", ds.Rows()), zap.Int("columns", len(ds.Columns)))
}

// SetPolicy replaces the policy text and drops the previous compliance report.
func (c *Context) SetPolicy(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = text
	c.report = nil
}

func (c *Context) Policy() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

func (c *Context) Dataset() *dataset.Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ds
}

// Profile returns the current profile or cde.ErrProfileMissing.
func (c *Context) Profile() (*analysis.DatasetProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile == nil {
		return nil, cde.ErrProfileMissing
	}
	return c.profile, nil
}

// IdentifyCDEs runs CDE identification against the current profile.
func (c *Context) IdentifyCDEs() ([]cde.CDE, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.identify(); err != nil {
		return nil, err
	}
	return append([]cde.CDE(nil), c.cdes...), nil
}

// Analyze runs the whole pipeline: CDEs, rule recommendation, checks and
// compliance. Recommendations that collide with existing rules are skipped.
func (c *Context) Analyze() (*Analysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.identify(); err != nil {
		return nil, err
	}

	start := time.Now()
	var recommended []rules.Rule
	for _, e := range c.cdes {
		col, ok := c.profile.Column(e.Column)
		if !ok {
			continue
		}
		for _, r := range c.rec.Recommend(e, *col) {
			stored, err := c.store.Add(r)
			switch {
			case err == nil:
				recommended = append(recommended, stored)
			case errors.Is(err, rules.ErrDuplicateRule):
				// already present, or superseded by a user rule
				if cur, gerr := c.store.Get(r.ID); gerr == nil {
					recommended = append(recommended, cur)
				}
			default:
				zap.L().Warn("recommended rule rejected", zap.String("rule", r.String()), zap.Error(err))
			}
		}
	}
	c.obs.ObserveStage(StageRecommend, time.Since(start))

	c.runChecks()
	c.checkCompliance()
	return &Analysis{
		CDEs:        append([]cde.CDE(nil), c.cdes...),
		Recommended: recommended,
		Result:      c.result,
		Compliance:  c.report,
	}, nil
}

// DefineRules adds user rules. The returned slices are index-aligned with rs:
// a stored rule or the error that rejected it.
func (c *Context) DefineRules(rs []rules.Rule) ([]rules.Rule, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]rules.Rule, len(rs))
	errs := make([]error, len(rs))
	for i, r := range rs {
		r.Origin = rules.OriginUserDefined
		stored[i], errs[i] = c.store.Add(r)
		if errs[i] == nil {
			c.invalidate()
		}
	}
	return stored, errs
}

// AddRule stores r keeping its origin.
func (c *Context) AddRule(r rules.Rule) (rules.Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, err := c.store.Add(r)
	if err == nil {
		c.invalidate()
	}
	return stored, err
}

func (c *Context) RemoveRule(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Remove(id); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

func (c *Context) SetRuleEnabled(id string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetEnabled(id, enabled); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

// invalidate drops results computed against an earlier rule store.
func (c *Context) invalidate() {
	c.result, c.report = nil, nil
}

// Rules lists every stored rule in display order.
func (c *Context) Rules() []rules.Rule {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.List()
}

// RestoreRules replaces the rule store with persisted state.
func (c *Context) RestoreRules(rs []rules.Rule, retired []string) error {
	s, err := rules.Restore(rs, retired)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ds != nil {
		s.SetColumns(c.ds.Names())
	}
	c.store = s
	c.invalidate()
	return nil
}

// RuleState returns the rules and retired ids for persistence.
func (c *Context) RuleState() ([]rules.Rule, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.List(), c.store.Retired()
}

// RunChecks evaluates the enabled rules against the current dataset.
func (c *Context) RunChecks() (*engine.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ds == nil {
		return nil, cde.ErrProfileMissing
	}
	c.runChecks()
	return c.result, nil
}

// Recheck runs the checks and scores compliance in one critical section, so
// both results come from the same dataset and rule store.
func (c *Context) Recheck() (*engine.Result, *compliance.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ds == nil {
		return nil, nil, cde.ErrProfileMissing
	}
	c.runChecks()
	c.checkCompliance()
	return c.result, c.report, nil
}

// CheckCompliance scores the policy against the latest rule scores, running
// the checks first when a dataset is loaded but not yet checked.
func (c *Context) CheckCompliance() (*compliance.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil && c.ds != nil {
		c.runChecks()
	}
	c.checkCompliance()
	return c.report, nil
}

// Summary folds the current artifacts.
func (c *Context) Summary() dashboard.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary()
}

func (c *Context) summary() dashboard.Summary {
	in := dashboard.Input{
		CDEs:         c.cdes,
		EnabledRules: len(c.store.ListEnabled()),
		Result:       c.result,
		Compliance:   c.report,
		TopN:         c.set.TopN,
	}
	if c.ds != nil {
		in.Ordinals = make(map[string]int, len(c.ds.Columns))
		for i, n := range c.ds.Names() {
			in.Ordinals[n] = i
		}
	}
	return dashboard.Summarize(in)
}

func (c *Context) identify() error {
	if c.profile == nil {
		return fmt.Errorf("identify cdes: %w", cde.ErrProfileMissing)
	}
	start := time.Now()
	cdes, err := c.ident.Identify(c.profile, c.mapper.PolicyTerms(c.policy))
	if err != nil {
		return err
	}
	c.obs.ObserveStage(StageCDE, time.Since(start))
	c.cdes = cdes
	zap.L().Debug("cdes identified", zap.Int("count", len(cdes)))
	return nil
}

func (c *Context) runChecks() {
	start := time.Now()
	c.result = c.eng.Run(c.ds, c.store, c.cdes)
	c.report = nil
	c.obs.ObserveStage(StageChecks, time.Since(start))
	c.obs.ObserveChecks(c.result)
}

func (c *Context) checkCompliance() {
	var scores map[string]float64
	if c.result != nil {
		scores = make(map[string]float64, len(c.result.RuleScores))
		for _, rs := range c.result.RuleScores {
			if rs.Score != nil {
				scores[rs.RuleID] = *rs.Score
			}
		}
	}
	start := time.Now()
	c.report = c.mapper.Check(c.store, c.policy, scores)
	c.obs.ObserveStage(StageCompliance, time.Since(start))
	c.obs.ObserveCompliance(c.report)
}
