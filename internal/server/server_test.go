package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
	"github.com/KaramelBytes/dqlens-cli/internal/history"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
	"github.com/KaramelBytes/dqlens-cli/internal/workspace"
)

const customersCSV = `customer_id,email,age
1,a@example.com,25
2,b@example.com,30
3,,200
4,d@example.com,41
`

type envelope struct {
	Status int             `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, h *history.Store) *Server {
	t.Helper()
	s, err := New(workspace.NewContext(workspace.DefaultSettings(), nil), nil, h, Options{Workspace: "test", Dataset: dataset.DefaultOptions()})
	require.NoError(t, err)
	return s
}

func upload(t *testing.T, s *Server, path, filename, content string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(t, s, req)
}

func call(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return do(t, s, req)
}

func do(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()

	h, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer h.Close()
	s := newTestServer(t, h)

	rec, env := call(t, s, http.MethodPost, "/analyze-data", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "analysis before upload")
	assert.Equal(t, http.StatusConflict, env.Status)

	rec, env = upload(t, s, "/upload-data", "customers.csv", customersCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info datasetInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, 4, info.Rows)
	assert.Equal(t, []string{"customer_id", "email", "age"}, info.Columns)

	rec, _ = upload(t, s, "/upload-policy", "policy.txt", "All customer records must include a valid email.\r\nAge must stay between 0 and 120 years.")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = call(t, s, http.MethodPost, "/analyze-data", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var a workspace.Analysis
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.NotEmpty(t, a.CDEs)
	assert.NotEmpty(t, a.Recommended)
	require.NotNil(t, a.Compliance)
	assert.Len(t, a.Compliance.Requirements, 2)

	rec, env = call(t, s, http.MethodPost, "/define-rules", map[string]any{"rules": []rules.Rule{
		{Column: "age", Kind: rules.KindRange, Enabled: true, Params: rules.Params{Min: fp(0), Max: fp(120)}},
		{Column: "age", Kind: rules.KindRegex, Enabled: true, Params: rules.Params{Pattern: "("}},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var outcomes []ruleOutcome
	require.NoError(t, json.Unmarshal(env.Data, &outcomes))
	require.Len(t, outcomes, 2)
	require.NotNil(t, outcomes[0].Rule)
	assert.Equal(t, rules.OriginUserDefined, outcomes[0].Rule.Origin)
	assert.NotEmpty(t, outcomes[1].Error)
	assert.Equal(t, "1 of 2 rules added", env.Msg)

	rec, env = call(t, s, http.MethodGet, "/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []rules.Rule
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.NotEmpty(t, listed)

	rec, env = call(t, s, http.MethodGet, "/run-quality-check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, env.Status)

	rec, _ = call(t, s, http.MethodDelete, "/rules/"+outcomes[0].Rule.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, env = call(t, s, http.MethodDelete, "/rules/"+outcomes[0].Rule.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.Status)

	rec, env = call(t, s, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "total_cdes")

	rec, _ = call(t, s, http.MethodGet, "/export-report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "data_summary")

	runs, err := h.List(context.Background(), "test", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2, "analysis and check are recorded")
}

func TestUploadErrors(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	rec, env := upload(t, s, "/upload-data", "data.parquet", "x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Msg, "unsupported")

	rec, _ = upload(t, s, "/upload-policy", "policy.rtf", "x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, s, http.MethodPost, "/define-rules", map[string]any{"rules": []rules.Rule{{Column: "a", Kind: "nope"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/upload-data", strings.NewReader("plain"))
	rec, _ = do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dqlens_issues_total")
}

func TestScheduleValidationAndRecheck(t *testing.T) {
	t.Parallel()

	_, err := New(workspace.NewContext(workspace.DefaultSettings(), nil), nil, nil, Options{Schedule: "every tuesday"})
	assert.Error(t, err)

	h, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer h.Close()
	wc := workspace.NewContext(workspace.DefaultSettings(), nil)
	s, err := New(wc, nil, h, Options{Workspace: "sched", Schedule: "@every 1h"})
	require.NoError(t, err)

	s.recheck()
	runs, err := h.List(context.Background(), "sched", 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "nothing to check without a dataset")

	ds, err := dataset.LoadBytes("c.csv", []byte(customersCSV), dataset.DefaultOptions())
	require.NoError(t, err)
	wc.ReplaceDataset(ds)
	s.recheck()
	runs, err = h.List(context.Background(), "sched", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 4, runs[0].Rows)
}

func fp(v float64) *float64 { return &v }
