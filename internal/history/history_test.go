package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dqlens-cli/internal/compliance"
	"github.com/KaramelBytes/dqlens-cli/internal/engine"
)

func fp(v float64) *float64 { return &v }

func TestRecordAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.Record(ctx, Run{Workspace: "crm", StartedAt: base.Add(time.Duration(i) * time.Hour), Rows: 10 + i, Quality: fp(0.5 + 0.1*float64(i))})
		require.NoError(t, err)
	}
	_, err = s.Record(ctx, Run{Workspace: "billing", StartedAt: base, Rows: 1})
	require.NoError(t, err)

	runs, err := s.List(ctx, "crm", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 12, runs[0].Rows, "newest first")
	assert.Equal(t, base.Add(2*time.Hour), runs[0].StartedAt)
	require.NotNil(t, runs[0].Quality)
	assert.InDelta(t, 0.7, *runs[0].Quality, 1e-9)
	assert.Nil(t, runs[0].Compliance)
	assert.NotEmpty(t, runs[0].ID)

	runs, err = s.List(ctx, "crm", 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = s.List(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNewRun(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res := &engine.Result{Rows: 4, RanAt: at, DatasetScore: fp(0.9), RuleScores: make([]engine.RuleScore, 3), Issues: make([]engine.Issue, 2)}
	r := NewRun("crm", res, &compliance.Report{Score: fp(0.4)})
	assert.Equal(t, Run{Workspace: "crm", StartedAt: at, Rows: 4, Rules: 3, Issues: 2, Quality: fp(0.9), Compliance: fp(0.4)}, r)

	r = NewRun("crm", nil, nil)
	assert.False(t, r.StartedAt.IsZero())
	assert.Nil(t, r.Quality)
}
