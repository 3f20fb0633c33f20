package workspace_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dqlens-cli/internal/cde"
	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
	"github.com/KaramelBytes/dqlens-cli/internal/workspace"
)

const customersCSV = `customer_id,email,age,country
1,a@example.com,25,DE
2,b@example.com,30,FR
3,,200,DE
4,d@example.com,41,DE
`

const policyText = "All customer records must include a valid email.\nEvery customer id must be unique across systems."

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func loadCustomers(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.LoadBytes("customers.csv", []byte(customersCSV), dataset.DefaultOptions())
	require.NoError(t, err)
	return ds
}

func TestContextRequiresDataset(t *testing.T) {
	t.Parallel()

	c := workspace.NewContext(workspace.DefaultSettings(), nil)
	_, err := c.Profile()
	assert.ErrorIs(t, err, cde.ErrProfileMissing)
	_, err = c.IdentifyCDEs()
	assert.ErrorIs(t, err, cde.ErrProfileMissing)
	_, err = c.Analyze()
	assert.ErrorIs(t, err, cde.ErrProfileMissing)
	_, err = c.RunChecks()
	assert.ErrorIs(t, err, cde.ErrProfileMissing)

	rep, err := c.CheckCompliance()
	require.NoError(t, err)
	assert.Empty(t, rep.Requirements)
	assert.Nil(t, c.Summary().MeanQuality)
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	t.Parallel()

	c := workspace.NewContext(workspace.DefaultSettings(), nil)
	c.ReplaceDataset(loadCustomers(t))
	c.SetPolicy(policyText)

	a, err := c.Analyze()
	require.NoError(t, err)
	require.NotEmpty(t, a.CDEs)
	require.NotEmpty(t, a.Recommended)
	require.NotNil(t, a.Result)
	require.NotNil(t, a.Compliance)
	for _, r := range a.Recommended {
		assert.Equal(t, rules.OriginRecommended, r.Origin)
	}
	n := len(c.Rules())

	b, err := c.Analyze()
	require.NoError(t, err)
	assert.Equal(t, n, len(c.Rules()), "recommendations are not added twice")
	assert.Equal(t, a.CDEs, b.CDEs)
	assert.Equal(t, a.Result.ColumnScores, b.Result.ColumnScores)
	assert.Equal(t, a.Result.Issues, b.Result.Issues)
	assert.Equal(t, *a.Compliance.Score, *b.Compliance.Score)
}

func TestUserRuleSupersedesRecommendation(t *testing.T) {
	t.Parallel()

	c := workspace.NewContext(workspace.DefaultSettings(), nil)
	c.ReplaceDataset(loadCustomers(t))
	_, err := c.Analyze()
	require.NoError(t, err)

	recID := rules.RecommendedID("email", rules.KindNotNull)
	rs := c.Rules()
	require.True(t, containsID(rs, recID), "email has a missing value")
	n := len(rs)

	stored, errs := c.DefineRules([]rules.Rule{
		{Column: "email", Kind: rules.KindNotNull, Enabled: true, Severity: rules.SeverityWarning},
		{Column: "age", Kind: rules.KindRange, Enabled: true},
	})
	require.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], rules.ErrInvalidRuleParameters)
	assert.Equal(t, rules.OriginUserDefined, stored[0].Origin)

	rs = c.Rules()
	assert.Len(t, rs, n)
	assert.False(t, containsID(rs, recID))
	assert.True(t, containsID(rs, stored[0].ID))

	// re-running analysis neither resurrects nor duplicates the recommendation
	_, err = c.Analyze()
	require.NoError(t, err)
	rs = c.Rules()
	assert.Len(t, rs, n)
	assert.False(t, containsID(rs, recID))

	require.NoError(t, c.RemoveRule(stored[0].ID))
	assert.ErrorIs(t, c.RemoveRule(stored[0].ID), rules.ErrRuleNotFound)
}

func TestChecksAndSummary(t *testing.T) {
	t.Parallel()

	c := workspace.NewContext(workspace.DefaultSettings(), nil)
	c.ReplaceDataset(loadCustomers(t))
	_, errs := c.DefineRules([]rules.Rule{
		{Column: "age", Kind: rules.KindRange, Enabled: true, Params: rules.Params{Min: fp(0), Max: fp(120)}},
		{Column: "age", Kind: rules.KindNotNull, Enabled: true},
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	res, err := c.RunChecks()
	require.NoError(t, err)
	assert.InDelta(t, 0.875, res.ColumnScores["age"], 1e-9)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, 2, res.Issues[0].Row)

	s := c.Summary()
	assert.Equal(t, 2, s.EnabledRules)
	assert.Equal(t, 1, s.TotalIssues)
	require.Len(t, s.LowestColumns, 1)
	assert.Equal(t, "age", s.LowestColumns[0].Column)

	rep := c.Report()
	assert.Equal(t, res, rep.Quality)
	assert.Len(t, rep.Rules, 2)
	require.NotNil(t, rep.DataSummary)
	assert.Equal(t, 4, rep.DataSummary.Rows)
}

func TestReplaceDatasetClearsDerivedArtifacts(t *testing.T) {
	t.Parallel()

	c := workspace.NewContext(workspace.DefaultSettings(), nil)
	c.ReplaceDataset(loadCustomers(t))
	_, err := c.Analyze()
	require.NoError(t, err)
	n := len(c.Rules())

	other, err := dataset.LoadBytes("other.csv", []byte("code\nA\nB\n"), dataset.DefaultOptions())
	require.NoError(t, err)
	c.ReplaceDataset(other)

	p, err := c.Profile()
	require.NoError(t, err)
	assert.Equal(t, 2, p.Rows)
	assert.Zero(t, c.Summary().TotalCDEs)
	assert.Len(t, c.Rules(), n, "rules survive a dataset swap")

	res, err := c.RunChecks()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	for _, is := range res.Issues {
		assert.Equal(t, -1, is.Row, "rules on vanished columns report a missing column")
	}
}

func TestConcurrentReplaceAndCheck(t *testing.T) {
	t.Parallel()

	small := loadCustomers(t)
	big, err := dataset.LoadBytes("big.csv", []byte(customersCSV+"5,e@example.com,50,FR\n6,f@example.com,60,DE\n"), dataset.DefaultOptions())
	require.NoError(t, err)

	c := workspace.NewContext(workspace.DefaultSettings(), nil)
	c.ReplaceDataset(small)
	_, err = c.Analyze()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				c.ReplaceDataset(big)
			} else {
				c.ReplaceDataset(small)
			}
		}(i)
		go func() {
			defer wg.Done()
			res, err := c.RunChecks()
			if !assert.NoError(t, err) {
				return
			}
			assert.Contains(t, []int{4, 6}, res.Rows)
			for _, is := range res.Issues {
				assert.Less(t, is.Row, res.Rows)
			}
		}()
	}
	wg.Wait()
}

func TestWorkspaceSaveLoadOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dataPath := writeFile(t, dir, "customers.csv", customersCSV)

	w := workspace.New("crm", " customer master ", filepath.Join(dir, "ws", "crm"))
	require.NoError(t, w.SetDataset(dataPath, dataset.DefaultOptions()))
	w.SetPolicy(filepath.Join(dir, "policy.txt"), policyText)

	c, err := w.Open(workspace.DefaultSettings(), nil)
	require.NoError(t, err)
	_, err = c.Analyze()
	require.NoError(t, err)
	_, errs := c.DefineRules([]rules.Rule{{Column: "email", Kind: rules.KindNotNull, Enabled: true}})
	require.NoError(t, errs[0])
	w.Capture(c)
	require.NoError(t, w.Save())

	loaded, err := workspace.Load(w.RootDir())
	require.NoError(t, err)
	assert.Equal(t, w.ID, loaded.ID)
	assert.Equal(t, "customer master", loaded.Description)
	assert.Equal(t, policyText, loaded.Policy.Text)
	assert.NotEmpty(t, loaded.Retired, "superseded recommendation is retired")

	c2, err := loaded.Open(workspace.DefaultSettings(), nil)
	require.NoError(t, err)
	assert.Equal(t, c.Rules(), c2.Rules())
	assert.Equal(t, policyText, c2.Policy())
	_, err = c2.Profile()
	require.NoError(t, err)

	_, err = workspace.Load(dir)
	assert.ErrorIs(t, err, workspace.ErrNotFound)
}

func containsID(rs []rules.Rule, id string) bool {
	for _, r := range rs {
		if r.ID == id {
			return true
		}
	}
	return false
}

func fp(v float64) *float64 { return &v }

func TestRuleEditsDropStaleResults(t *testing.T) {
	t.Parallel()

	c := workspace.NewContext(workspace.DefaultSettings(), nil)
	c.ReplaceDataset(loadCustomers(t))
	c.SetPolicy("All email addresses must follow a valid format.")
	_, err := c.Analyze()
	require.NoError(t, err)

	for _, r := range c.Rules() {
		if r.Column == "email" {
			require.NoError(t, c.RemoveRule(r.ID))
		}
	}
	assert.Nil(t, c.Report().Quality, "removing a rule drops the old result")

	stored, errs := c.DefineRules([]rules.Rule{
		{Column: "email", Kind: rules.KindRegex, Enabled: true, Params: rules.Params{Pattern: ".+@.+"}},
	})
	require.NoError(t, errs[0])
	assert.Nil(t, c.Report().Quality)
	assert.Zero(t, c.Summary().TotalIssues)

	rep, err := c.CheckCompliance()
	require.NoError(t, err)
	require.Len(t, rep.Requirements, 1)
	req := rep.Requirements[0]
	assert.Contains(t, req.MatchedRules, stored[0].ID)
	require.NotNil(t, req.BestScore)
	assert.Equal(t, 1.0, *req.BestScore)
	assert.Equal(t, 1.0, req.Score)

	require.NoError(t, c.SetRuleEnabled(stored[0].ID, false))
	assert.Nil(t, c.Report().Compliance, "disabling a rule drops the old report")
}

func TestRecheckPairsResultAndReport(t *testing.T) {
	t.Parallel()

	small := loadCustomers(t)
	big, err := dataset.LoadBytes("big.csv", []byte(customersCSV+"5,e@example.com,50,FR\n6,f@example.com,60,DE\n"), dataset.DefaultOptions())
	require.NoError(t, err)

	c := workspace.NewContext(workspace.DefaultSettings(), nil)
	c.ReplaceDataset(small)
	c.SetPolicy("Customer age must stay between 0 and 120 years.")
	stored, errs := c.DefineRules([]rules.Rule{
		{Column: "age", Kind: rules.KindRange, Enabled: true, Params: rules.Params{Min: fp(0), Max: fp(120)}},
	})
	require.NoError(t, errs[0])

	_, _, err = workspace.NewContext(workspace.DefaultSettings(), nil).Recheck()
	assert.ErrorIs(t, err, cde.ErrProfileMissing)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				c.ReplaceDataset(big)
			} else {
				c.ReplaceDataset(small)
			}
		}(i)
		go func() {
			defer wg.Done()
			res, rep, err := c.Recheck()
			if !assert.NoError(t, err) {
				return
			}
			score, ok := res.Score(stored[0].ID)
			if !assert.True(t, ok) {
				return
			}
			if assert.Len(t, rep.Requirements, 1) && assert.NotNil(t, rep.Requirements[0].BestScore) {
				assert.Equal(t, score, *rep.Requirements[0].BestScore, "compliance scored against the same run")
			}
		}()
	}
	wg.Wait()
}
