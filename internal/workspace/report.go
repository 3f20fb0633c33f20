package workspace

import (
	"time"

	"github.com/KaramelBytes/dqlens-cli/internal/analysis"
	"github.com/KaramelBytes/dqlens-cli/internal/cde"
	"github.com/KaramelBytes/dqlens-cli/internal/compliance"
	"github.com/KaramelBytes/dqlens-cli/internal/dashboard"
	"github.com/KaramelBytes/dqlens-cli/internal/engine"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
)

// Report is the exportable snapshot of a context.
type Report struct {
	GeneratedAt time.Time                `json:"generated_at"`
	DataSummary *analysis.DatasetProfile `json:"data_summary"`
	CDEs        []cde.CDE                `json:"cdes"`
	Rules       []rules.Rule             `json:"rules"`
	Quality     *engine.Result           `json:"quality"`
	Compliance  *compliance.Report       `json:"compliance"`
	Summary     dashboard.Summary        `json:"summary"`
}

// Report assembles the current artifacts without recomputing anything.
func (c *Context) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Report{
		GeneratedAt: time.Now().UTC(),
		DataSummary: c.profile,
		CDEs:        append([]cde.CDE{}, c.cdes...),
		Rules:       c.store.List(),
		Quality:     c.result,
		Compliance:  c.report,
		Summary:     c.summary(),
	}
}
