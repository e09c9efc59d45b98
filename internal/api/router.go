package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/soaringjerry/whenwhy/internal/logger"
	"github.com/soaringjerry/whenwhy/internal/middleware"
	"github.com/soaringjerry/whenwhy/internal/models"
	"github.com/soaringjerry/whenwhy/internal/services"
	"github.com/soaringjerry/whenwhy/internal/utils"
)

// maxBodyBytes caps request bodies; an import of a full study fits well
// below it.
const maxBodyBytes = 16 << 20

type Deps struct {
	Study        *services.StudyService
	Participants *services.ParticipantService
	Export       *services.ExportService
	Analytics    *services.AnalyticsService
	Auth         *services.AuthService
	Provider     services.SuggestionProvider
	Authn        *middleware.Authenticator
	Logger       *logger.Logger
}

type Router struct {
	study        *services.StudyService
	participants *services.ParticipantService
	export       *services.ExportService
	analytics    *services.AnalyticsService
	auth         *services.AuthService
	provider     services.SuggestionProvider
	authn        *middleware.Authenticator
	log          *logger.Logger
}

func NewRouter(d Deps) *Router {
	rt := &Router{
		study:        d.Study,
		participants: d.Participants,
		export:       d.Export,
		analytics:    d.Analytics,
		auth:         d.Auth,
		provider:     d.Provider,
		authn:        d.Authn,
		log:          d.Logger,
	}
	if rt.log == nil {
		rt.log = logger.Nop()
	}
	if rt.authn == nil {
		rt.authn = middleware.NewAuthenticator("")
	}
	return rt
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", rt.handleHealth)

	// Record-level routes used by clients that run the task themselves.
	mux.HandleFunc("POST /api/participants/create", rt.handleCreateParticipant)
	mux.HandleFunc("GET /api/participants/{id}", rt.handleGetParticipant)
	mux.HandleFunc("PUT /api/participants/{id}/demographics", rt.handleUpdateDemographics)
	mux.HandleFunc("POST /api/participants/{id}/sessions", rt.handleOpenSession)
	mux.HandleFunc("PUT /api/participants/{id}/sessions/{sid}", rt.handleUpdateSession)
	mux.HandleFunc("POST /api/participants/{id}/sessions/{sid}/interactions", rt.handleAppendInteraction)
	mux.HandleFunc("PUT /api/participants/{id}/transfer", rt.handleSetTransfer)
	mux.HandleFunc("PUT /api/participants/{id}/complete", rt.handleComplete)

	// Server-hosted study flow.
	mux.HandleFunc("POST /api/study/consent", rt.handleConsent)
	mux.HandleFunc("GET /api/study/{pid}", rt.handleStudyState)
	mux.HandleFunc("POST /api/study/{pid}/demographics", rt.handleStudyDemographics)
	mux.HandleFunc("POST /api/study/{pid}/tutorial", rt.handleTutorial)
	mux.HandleFunc("POST /api/study/{pid}/task/start", rt.handleTaskStart)
	mux.HandleFunc("GET /api/study/{pid}/task", rt.taskAction(nil))
	mux.HandleFunc("POST /api/study/{pid}/task/leave", rt.handleTaskLeave)
	mux.HandleFunc("POST /api/study/{pid}/task/draft", rt.taskAction(taskDraft))
	mux.HandleFunc("POST /api/study/{pid}/task/ideas", rt.taskAction(taskSubmitIdea))
	mux.HandleFunc("POST /api/study/{pid}/task/rationale", rt.taskAction(taskRationale))
	mux.HandleFunc("POST /api/study/{pid}/task/rationale/cancel", rt.taskAction(taskCancelRationale))
	mux.HandleFunc("POST /api/study/{pid}/task/help", rt.taskAction(taskHelp))
	mux.HandleFunc("POST /api/study/{pid}/task/suggestions/close", rt.taskAction(taskCloseSuggestions))
	mux.HandleFunc("POST /api/study/{pid}/task/suggestions/{sid}/accept", rt.taskAction(taskRespond(true)))
	mux.HandleFunc("POST /api/study/{pid}/task/suggestions/{sid}/dismiss", rt.taskAction(taskRespond(false)))
	mux.HandleFunc("POST /api/study/{pid}/task/finish", rt.taskAction(taskFinish))
	mux.HandleFunc("POST /api/study/{pid}/task/questionnaire", rt.handleQuestionnaire)
	mux.HandleFunc("POST /api/study/{pid}/transfer/retry", rt.handleTransferRetry)
	mux.HandleFunc("POST /api/study/{pid}/post-survey", rt.handlePostSurvey)

	mux.HandleFunc("POST /api/ai/suggestions", rt.handleSuggestions)
	mux.HandleFunc("GET /api/ai/datasets", rt.handleDatasets)
	mux.HandleFunc("GET /api/ai/datasets/{taskId}", rt.handleDataset)

	mux.HandleFunc("POST /api/auth/login", rt.handleLogin)

	mux.Handle("GET /api/data/export", rt.researcherOnly(rt.handleExportAll))
	mux.Handle("GET /api/data/export/{pid}", rt.researcherOnly(rt.handleExportParticipant))
	mux.Handle("GET /api/data/stats", rt.researcherOnly(rt.handleStats))
	mux.Handle("GET /api/data/analytics", rt.researcherOnly(rt.handleAnalytics))
	mux.Handle("POST /api/data/import", rt.researcherOnly(rt.handleImport))
}

func (rt *Router) researcherOnly(h http.HandlerFunc) http.Handler {
	return rt.authn.WithAuth(middleware.RequireAuth(h))
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": utils.T(middleware.LocaleFromContext(r.Context()), "health.ok")})
}

// Participants

func (rt *Router) handleCreateParticipant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Demographics *models.Demographics `json:"demographics"`
	}
	if !rt.decodeOptional(w, r, &req) {
		return
	}
	p, err := rt.participants.Create(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if req.Demographics != nil {
		if err := rt.participants.UpdateDemographics(r.Context(), p.ParticipantID, *req.Demographics); err != nil {
			rt.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"participantId": p.ParticipantID, "conditionOrder": p.ConditionOrder, "success": true})
}

func (rt *Router) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := rt.participants.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (rt *Router) handleUpdateDemographics(w http.ResponseWriter, r *http.Request) {
	var d models.Demographics
	if !rt.decode(w, r, &d) {
		return
	}
	if err := rt.participants.UpdateDemographics(r.Context(), r.PathValue("id"), d); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (rt *Router) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Condition models.Condition `json:"condition"`
		TaskID    int              `json:"taskId"`
	}
	if !rt.decode(w, r, &req) {
		return
	}
	sid, err := rt.participants.OpenSession(r.Context(), r.PathValue("id"), req.Condition, req.TaskID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sid, "success": true})
}

func (rt *Router) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var u models.SessionUpdate
	if !rt.decode(w, r, &u) {
		return
	}
	if err := rt.participants.UpdateSession(r.Context(), r.PathValue("id"), r.PathValue("sid"), u); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (rt *Router) handleAppendInteraction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action  string         `json:"action"`
		Details map[string]any `json:"details"`
	}
	if !rt.decode(w, r, &req) {
		return
	}
	if err := rt.participants.AppendInteraction(r.Context(), r.PathValue("id"), r.PathValue("sid"), req.Action, req.Details); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (rt *Router) handleSetTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransferTasks []models.TransferTask `json:"transferTasks"`
	}
	if !rt.decode(w, r, &req) {
		return
	}
	if err := rt.participants.SetTransferTasks(r.Context(), r.PathValue("id"), req.TransferTasks); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (rt *Router) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostStudy models.PostStudy `json:"postStudy"`
	}
	if !rt.decode(w, r, &req) {
		return
	}
	if err := rt.participants.Complete(r.Context(), r.PathValue("id"), req.PostStudy); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// Study flow

func (rt *Router) handleConsent(w http.ResponseWriter, r *http.Request) {
	p, err := rt.study.Consent(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participantId": p.ParticipantID, "conditionOrder": p.ConditionOrder, "phase": p.Phase, "success": true})
}

func (rt *Router) handleStudyState(w http.ResponseWriter, r *http.Request) {
	st, err := rt.study.State(r.Context(), r.PathValue("pid"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (rt *Router) handleStudyDemographics(w http.ResponseWriter, r *http.Request) {
	var d models.Demographics
	if !rt.decode(w, r, &d) {
		return
	}
	if err := rt.study.SubmitDemographics(r.Context(), r.PathValue("pid"), d); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeState(w, r)
}

func (rt *Router) handleTutorial(w http.ResponseWriter, r *http.Request) {
	if err := rt.study.CompleteTutorial(r.Context(), r.PathValue("pid")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeState(w, r)
}

func (rt *Router) handleTaskStart(w http.ResponseWriter, r *http.Request) {
	snap, err := rt.study.StartTask(r.Context(), r.PathValue("pid"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (rt *Router) handleTaskLeave(w http.ResponseWriter, r *http.Request) {
	if err := rt.study.LeaveTask(r.Context(), r.PathValue("pid")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// taskOp applies one participant action to the live controller.
type taskOp func(r *http.Request, c *services.TaskController, body []byte) error

type textBody struct {
	Text string `json:"text"`
}

func decodeText(body []byte) (string, error) {
	var b textBody
	if len(body) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(body, &b); err != nil {
		return "", errInvalidJSON
	}
	return b.Text, nil
}

func taskDraft(r *http.Request, c *services.TaskController, body []byte) error {
	text, err := decodeText(body)
	if err != nil {
		return err
	}
	return c.UpdateDraft(text)
}

func taskSubmitIdea(r *http.Request, c *services.TaskController, body []byte) error {
	text, err := decodeText(body)
	if err != nil {
		return err
	}
	_, err = c.SubmitIdea(r.Context(), text)
	return err
}

func taskRationale(r *http.Request, c *services.TaskController, body []byte) error {
	text, err := decodeText(body)
	if err != nil {
		return err
	}
	return c.SubmitRationale(r.Context(), text)
}

func taskCancelRationale(r *http.Request, c *services.TaskController, _ []byte) error {
	return c.CancelRationale(r.Context())
}

func taskHelp(r *http.Request, c *services.TaskController, _ []byte) error {
	return c.RequestHelp(r.Context())
}

func taskCloseSuggestions(r *http.Request, c *services.TaskController, _ []byte) error {
	return c.CloseSuggestions(r.Context())
}

func taskRespond(accept bool) taskOp {
	return func(r *http.Request, c *services.TaskController, _ []byte) error {
		return c.RespondSuggestion(r.Context(), r.PathValue("sid"), accept)
	}
}

func taskFinish(r *http.Request, c *services.TaskController, _ []byte) error {
	return c.Finish(r.Context())
}

// taskAction resolves the participant's controller, applies op and answers
// with the resulting snapshot. A nil op only reads the snapshot.
func (rt *Router) taskAction(op taskOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			rt.writeError(w, r, errInvalidJSON)
			return
		}
		c, err := rt.study.Task(r.Context(), r.PathValue("pid"))
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		if op != nil {
			if err := op(r, c, body); err != nil {
				rt.writeError(w, r, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, c.Snapshot())
	}
}

func (rt *Router) handleQuestionnaire(w http.ResponseWriter, r *http.Request) {
	var q models.Questionnaire
	if !rt.decode(w, r, &q) {
		return
	}
	if err := rt.study.SubmitQuestionnaire(r.Context(), r.PathValue("pid"), q); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeState(w, r)
}

func (rt *Router) handleTransferRetry(w http.ResponseWriter, r *http.Request) {
	if err := rt.study.RetryTransferSave(r.Context(), r.PathValue("pid")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeState(w, r)
}

func (rt *Router) handlePostSurvey(w http.ResponseWriter, r *http.Request) {
	var p models.PostStudy
	if !rt.decode(w, r, &p) {
		return
	}
	if err := rt.study.SubmitPostStudy(r.Context(), r.PathValue("pid"), p); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeState(w, r)
}

func (rt *Router) writeState(w http.ResponseWriter, r *http.Request) {
	st, err := rt.study.State(r.Context(), r.PathValue("pid"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// AI

func (rt *Router) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID        int      `json:"taskId"`
		ExistingIdeas []string `json:"existingIdeas"`
		ParticipantID string   `json:"participantId"`
	}
	if !rt.decode(w, r, &req) {
		return
	}
	ds, err := services.DatasetByID(req.TaskID)
	if err != nil {
		rt.writeError(w, r, services.NewInvalidError("dataset.invalid_task"))
		return
	}
	list, fallback, err := services.GenerateOrFallback(r.Context(), rt.provider, services.SuggestionRequest{Dataset: ds, ExistingIdeas: req.ExistingIdeas})
	if fallback {
		if err != nil {
			rt.log.Warn("suggestion provider failed", "participant_id", req.ParticipantID, "task_id", req.TaskID, "err", err)
		}
		locale := middleware.LocaleFromContext(r.Context())
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": utils.T(locale, "ai.generation_failed"), "suggestions": list})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": list, "success": true})
}

func (rt *Router) handleDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, services.Datasets())
}

func (rt *Router) handleDataset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("taskId"))
	if err != nil {
		rt.writeError(w, r, services.ErrDatasetNotFound)
		return
	}
	ds, err := services.DatasetByID(id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// Researchers

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !rt.decode(w, r, &req) {
		return
	}
	res, err := rt.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "researcherId": res.ResearcherID, "expiresIn": int(rt.auth.TokenTTL().Seconds())})
}

// GET /api/data/export?format=csv&kind=ideas|questionnaire
func (rt *Router) handleExportAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("format") == "csv" {
		kind := q.Get("kind")
		b, err := rt.export.ExportCSV(r.Context(), kind)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		if kind == "" {
			kind = services.CSVIdeas
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=whenwhy_"+kind+".csv")
		_, _ = w.Write(b)
		return
	}
	env, err := rt.export.ExportAll(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (rt *Router) handleExportParticipant(w http.ResponseWriter, r *http.Request) {
	pe, err := rt.export.ExportParticipant(r.Context(), r.PathValue("pid"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pe)
}

func (rt *Router) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := rt.export.Stats(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (rt *Router) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	sum, err := rt.analytics.Summary(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (rt *Router) handleImport(w http.ResponseWriter, r *http.Request) {
	var env services.ExportEnvelope
	if !rt.decode(w, r, &env) {
		return
	}
	imported, skipped, err := rt.export.ImportParticipants(r.Context(), env)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if claims, ok := middleware.ResearcherFromContext(r.Context()); ok {
		rt.log.Info("participants imported", "researcher", claims.Subject, "imported", imported, "skipped", skipped)
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": imported, "skipped": skipped, "success": true})
}

// Helpers

var errInvalidJSON = services.NewInvalidError("request.invalid_json")

func (rt *Router) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		rt.writeError(w, r, errInvalidJSON)
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func (rt *Router) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		rt.writeError(w, r, errInvalidJSON)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers {"error": message} with the message translated for
// the request locale. Unclassified errors are logged and hidden.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	if se, ok := services.AsServiceError(err); ok {
		writeJSON(w, statusFor(se.Code), map[string]any{"error": utils.T(locale, se.Message), "code": se.Message})
		return
	}
	rt.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", middleware.RequestIDFromContext(r.Context()), "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": utils.T(locale, "server.error")})
}
