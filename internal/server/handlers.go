package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/monitoring"
	"github.com/sells-group/rectify-cli/internal/rectify"
	"github.com/sells-group/rectify-cli/internal/store"
)

type errorResponse struct {
	Error      string              `json:"error"`
	Category   model.ErrorCategory `json:"category,omitempty"`
	Violations []rectify.Violation `json:"violations,omitempty"`
	RunID      string              `json:"run_id,omitempty"`
}

// writeError maps an error onto a status code by its category.
func writeError(w http.ResponseWriter, err error, runID string) {
	resp := errorResponse{Error: err.Error(), Category: rectify.ErrorCategory(err), RunID: runID}

	var ce *rectify.ConfigurationError
	if errors.As(err, &ce) {
		resp.Violations = ce.Violations
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case resp.Category == model.ErrorCategoryInput:
		status = http.StatusBadRequest
	case resp.Category == model.ErrorCategoryConfiguration, resp.Category == model.ErrorCategoryEvidence:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Category: model.ErrorCategoryInput})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "store": s.store != nil}
	writeJSON(w, http.StatusOK, status)
}

type presetResponse struct {
	Profile       rectify.Profile       `json:"profile"`
	Configuration rectify.Configuration `json:"configuration"`
	Candidates    int                   `json:"candidates"`
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	presets := make([]presetResponse, 0, len(rectify.Profiles))
	for _, p := range rectify.Profiles {
		cfg := rectify.MustPreset(p)
		presets = append(presets, presetResponse{
			Profile:       p,
			Configuration: cfg,
			Candidates:    cfg.Algorithm.CandidateCount(),
		})
	}
	writeJSON(w, http.StatusOK, presets)
}

type validateRequest struct {
	Profile   rectify.Profile    `json:"profile,omitempty"`
	Overrides *rectify.Overrides `json:"overrides,omitempty"`
}

type validateResponse struct {
	Configuration rectify.Configuration    `json:"configuration"`
	Validation    rectify.ValidationResult `json:"validation"`
}

// handleValidate reports on a profile plus overrides without running
// anything. An invalid configuration is still a 200; only an unknown
// profile is rejected.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	overrides := req.Overrides.WithCapabilities(rectify.RuntimeCapabilities(nil, s.opts.HighPrecision))
	cfg, err := s.configuration(req.Profile, overrides)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Configuration: cfg,
		Validation:    rectify.ValidateConfiguration(cfg),
	})
}

// configuration resolves the preset and merges overrides. It does not
// validate.
func (s *Server) configuration(profile rectify.Profile, overrides *rectify.Overrides) (rectify.Configuration, error) {
	if profile == "" {
		profile = s.opts.DefaultProfile
	}
	base, err := rectify.Preset(profile)
	if err != nil {
		return rectify.Configuration{}, err
	}
	return overrides.Apply(base), nil
}

type rectifyRequest struct {
	// Birth is a birth data document in the same shape as the CLI input file.
	Birth     jsonDocument       `json:"birth"`
	Profile   rectify.Profile    `json:"profile,omitempty"`
	Overrides *rectify.Overrides `json:"overrides,omitempty"`
	Save      *bool              `json:"save,omitempty"`
}

type rectifyResponse struct {
	RunID  string                  `json:"run_id,omitempty"`
	Result *rectify.EnsembleResult `json:"result"`
}

func (s *Server) handleRectify(w http.ResponseWriter, r *http.Request) {
	var req rectifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if len(req.Birth) == 0 {
		badRequest(w, "birth is required")
		return
	}
	birth, err := model.ParseBirthData(req.Birth)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	overrides := req.Overrides.WithCapabilities(rectify.RuntimeCapabilities(birth, s.opts.HighPrecision))
	cfg, err := s.configuration(req.Profile, overrides)
	if err != nil {
		writeError(w, err, "")
		return
	}

	res, runErr := s.engine.Rectify(r.Context(), birth, cfg)

	var runID string
	if s.shouldSave(req.Save) && !errors.Is(runErr, context.Canceled) {
		runID = s.saveRun(r.Context(), birth, cfg, res, runErr)
	}

	if runErr != nil {
		writeError(w, runErr, runID)
		return
	}
	writeJSON(w, http.StatusOK, rectifyResponse{RunID: runID, Result: res})
}

func (s *Server) shouldSave(requested *bool) bool {
	if s.store == nil {
		return false
	}
	if requested != nil {
		return *requested
	}
	return s.opts.SaveRuns
}

// saveRun persists the outcome and returns its id. Failures are logged and
// never change the response.
func (s *Server) saveRun(ctx context.Context, birth *model.BirthData, cfg rectify.Configuration, res *rectify.EnsembleResult, runErr error) string {
	run, err := rectify.NewRun(birth, cfg, res, runErr)
	if err != nil {
		s.log.Error("build run record", zap.Error(err))
		return ""
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.log.Error("save run", zap.String("subject", run.Subject), zap.Error(err))
		return ""
	}
	return run.ID
}

type optimizeRequest struct {
	Scores      map[string]float64              `json:"scores"`
	Constraints rectify.OptimizationConstraints `json:"constraints"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if len(req.Scores) == 0 {
		badRequest(w, "scores is required")
		return
	}
	res, err := rectify.OptimizeWeights(req.Scores, req.Constraints)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Category: model.ErrorCategoryInput})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "run history is not configured"})
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:  model.RunStatus(q.Get("status")),
		Subject: q.Get("subject"),
		Profile: q.Get("profile"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		badRequest(w, "limit: "+err.Error())
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		badRequest(w, "offset: "+err.Error())
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.log.Error("list runs", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "list runs failed", Category: model.ErrorCategoryInternal})
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "run history is not configured"})
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run " + id + " not found"})
		return
	}
	if err != nil {
		s.log.Error("get run", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "get run failed", Category: model.ErrorCategoryInternal})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type metricsResponse struct {
	Metrics *monitoring.MetricsSnapshot `json:"metrics"`
	Alerts  []monitoring.Alert          `json:"alerts"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "run history is not configured"})
		return
	}
	lookback, err := intParam(r.URL.Query().Get("lookback_hours"))
	if err != nil {
		badRequest(w, "lookback_hours: "+err.Error())
		return
	}
	if lookback == 0 {
		lookback = s.opts.MetricsLookbackHours
	}

	snap, err := s.metrics.Collect(r.Context(), lookback)
	if err != nil {
		s.log.Error("collect metrics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "collect metrics failed", Category: model.ErrorCategoryInternal})
		return
	}
	resp := metricsResponse{Metrics: snap, Alerts: []monitoring.Alert{}}
	if s.opts.Alerter != nil {
		if alerts := s.opts.Alerter.Evaluate(snap); len(alerts) > 0 {
			resp.Alerts = alerts
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, eris.Wrapf(err, "server: parse %q", v)
	}
	if n < 0 {
		return 0, eris.Errorf("server: %d must not be negative", n)
	}
	return n, nil
}

// jsonDocument accepts either an embedded JSON object or a string holding
// a YAML document.
type jsonDocument []byte

func (d *jsonDocument) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*d = jsonDocument(text)
		return nil
	}
	if string(data) == "null" {
		*d = nil
		return nil
	}
	*d = append((*d)[:0], data...)
	return nil
}
