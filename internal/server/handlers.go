package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/KaramelBytes/dqlens-cli/internal/cde"
	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
	"github.com/KaramelBytes/dqlens-cli/internal/history"
	"github.com/KaramelBytes/dqlens-cli/internal/policy"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
)

// APIResponse is the envelope of every JSON response. Status is 0 on
// success and the HTTP status code otherwise.
type APIResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
}

func ok(w http.ResponseWriter, r *http.Request, msg string, data any) {
	render.JSON(w, r, APIResponse{Status: 0, Msg: msg, Data: data})
}

func fail(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	render.Status(r, code)
	render.JSON(w, r, APIResponse{Status: code, Msg: err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, cde.ErrProfileMissing):
		return http.StatusConflict
	case errors.Is(err, rules.ErrDuplicateRule):
		return http.StatusConflict
	case errors.Is(err, rules.ErrInvalidRuleParameters),
		errors.Is(err, dataset.ErrUnsupported),
		errors.Is(err, dataset.ErrInvalidDataset),
		errors.Is(err, policy.ErrUnsupported):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opt.MaxUpload)
	if err := r.ParseMultipartForm(s.opt.MaxUpload); err != nil {
		return "", nil, fmt.Errorf("parse upload: %w", err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("form field \"file\": %w", err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return hdr.Filename, b, nil
}

type datasetInfo struct {
	Name     string   `json:"name"`
	Rows     int      `json:"rows"`
	Columns  []string `json:"columns"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Server) uploadData(w http.ResponseWriter, r *http.Request) {
	name, content, err := s.readUpload(w, r)
	if err != nil {
		fail(w, r, http.StatusBadRequest, err)
		return
	}
	if !dataset.Supported(name) {
		fail(w, r, http.StatusBadRequest, fmt.Errorf("%w: %s", dataset.ErrUnsupported, name))
		return
	}
	ds, err := dataset.LoadBytes(name, content, s.opt.Dataset)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadRequest
		}
		fail(w, r, code, err)
		return
	}
	s.wc.ReplaceDataset(ds)
	ok(w, r, "dataset loaded", datasetInfo{Name: ds.Name, Rows: ds.Rows(), Columns: ds.Names(), Warnings: ds.Warnings})
}

func (s *Server) uploadPolicy(w http.ResponseWriter, r *http.Request) {
	name, content, err := s.readUpload(w, r)
	if err != nil {
		fail(w, r, http.StatusBadRequest, err)
		return
	}
	text, err := policy.ExtractBytes(r.Context(), name, content, s.opt.Policy)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			code = http.StatusUnprocessableEntity
		}
		fail(w, r, code, err)
		return
	}
	s.wc.SetPolicy(text)
	ok(w, r, "policy loaded", map[string]any{
		"name":       name,
		"characters": len([]rune(text)),
		"lines":      strings.Count(text, "\n") + 1,
	})
}

func (s *Server) analyzeData(w http.ResponseWriter, r *http.Request) {
	a, err := s.wc.Analyze()
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	s.record(r.Context(), history.NewRun(s.opt.Workspace, a.Result, a.Compliance))
	ok(w, r, "analysis complete", a)
}

type defineRequest struct {
	Rules []rules.Rule `json:"rules"`
}

type ruleOutcome struct {
	Index int         `json:"index"`
	Rule  *rules.Rule `json:"rule,omitempty"`
	Error string      `json:"error,omitempty"`
}

func (s *Server) defineRules(w http.ResponseWriter, r *http.Request) {
	var req defineRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, fmt.Errorf("decode rules: %w", err))
		return
	}
	if len(req.Rules) == 0 {
		fail(w, r, http.StatusBadRequest, errors.New("no rules given"))
		return
	}
	stored, errs := s.wc.DefineRules(req.Rules)
	out := make([]ruleOutcome, len(stored))
	failed := 0
	for i := range stored {
		out[i].Index = i
		if errs[i] != nil {
			out[i].Error = errs[i].Error()
			failed++
			continue
		}
		out[i].Rule = &stored[i]
	}
	msg := fmt.Sprintf("%d of %d rules added", len(stored)-failed, len(stored))
	if failed == len(stored) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, APIResponse{Status: http.StatusBadRequest, Msg: msg, Data: out})
		return
	}
	ok(w, r, msg, out)
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	ok(w, r, "", s.wc.Rules())
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.wc.RemoveRule(id); err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	ok(w, r, "rule removed", map[string]string{"id": id})
}

func (s *Server) runQualityCheck(w http.ResponseWriter, r *http.Request) {
	res, rep, err := s.wc.Recheck()
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	s.record(r.Context(), history.NewRun(s.opt.Workspace, res, rep))
	ok(w, r, "checks complete", res)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	ok(w, r, "", s.wc.Summary())
}

func (s *Server) exportReport(w http.ResponseWriter, r *http.Request) {
	rep := s.wc.Report()
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "dqlens-report-"+rep.GeneratedAt.Format("20060102T150405Z")+".json"))
	render.JSON(w, r, rep)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}
