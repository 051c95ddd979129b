package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examtaker/internal/contentstore"
	"github.com/pavelanni/examtaker/internal/exam"
	"github.com/pavelanni/examtaker/internal/handler/views"
	appI18n "github.com/pavelanni/examtaker/internal/i18n"
	"github.com/pavelanni/examtaker/internal/model"
	"github.com/pavelanni/examtaker/internal/store"
)

// ContentStore is the remote document store holding tests and results.
type ContentStore interface {
	FetchDocument(ctx context.Context, collection, documentID, credential string) (json.RawMessage, error)
	PutDocument(ctx context.Context, collection, name string, payload any, message, credential string) error
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	sessions *exam.Registry
	remote   ContentStore
	journal  *store.Store
	validate *validator.Validate
	config   model.AppConfig
	now      func() time.Time
}

// New creates a new Handler.
func New(remote ContentStore, journal *store.Store, cfg model.AppConfig) (*Handler, error) {
	if remote == nil {
		return nil, errors.New("content store is required")
	}
	if journal == nil {
		return nil, errors.New("journal is required")
	}
	return &Handler{
		sessions: exam.NewRegistry(cfg.SessionTTL),
		remote:   remote,
		journal:  journal,
		validate: validator.New(),
		config:   cfg,
		now:      time.Now,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Use(h.sessionMiddleware)

		r.Get("/", h.handleIndex)
		r.Post("/load", h.handleLoad)
		r.Get("/exam", h.handleExamPage)
		r.Post("/exam/start", h.handleStart)
		r.Post("/exam/answer/{ordinal}", h.handleAnswer)
		r.Post("/exam/finish", h.handleFinish)
		r.Get("/exam/timer", h.handleTimer)
		r.Get("/result", h.handleResultPage)
		r.Get("/result/download", h.handleDownload)
		r.Post("/reset", h.handleReset)
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CleanupSessions drops idle sessions and returns how many were removed. An
// attempt whose time ran out while the browser was away is submitted first.
func (h *Handler) CleanupSessions() int {
	removed := h.sessions.Cleanup(h.now())
	for _, sess := range removed {
		h.autoSubmit(context.Background(), sess)
	}
	return len(removed)
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	switch sess.Snapshot().Phase {
	case exam.PhaseInProgress:
		http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
		return
	case exam.PhaseCompleted:
		http.Redirect(w, r, h.path("/result"), http.StatusSeeOther)
		return
	}
	h.renderIndex(w, r, http.StatusOK, views.IndexData{})
}

func (h *Handler) renderIndex(w http.ResponseWriter, r *http.Request, status int, data views.IndexData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.IndexPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func identityFromForm(r *http.Request) model.StudentIdentity {
	return model.StudentIdentity{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Email:       strings.TrimSpace(r.FormValue("email")),
		StudentID:   strings.TrimSpace(r.FormValue("student_id")),
		TestID:      strings.TrimSpace(r.FormValue("test_id")),
		AccessToken: strings.TrimSpace(r.FormValue("access_token")),
	}
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if sess.Snapshot().Phase != exam.PhaseAwaitingIdentity {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}

	id := identityFromForm(r)
	form := views.IndexData{Name: id.Name, Email: id.Email, StudentID: id.StudentID, TestID: id.TestID}

	if err := h.validate.Struct(id); err != nil {
		form.Error = appI18n.T(r.Context(), validationMessage(err))
		h.renderIndex(w, r, http.StatusUnprocessableEntity, form)
		return
	}

	raw, err := h.remote.FetchDocument(r.Context(), h.config.QuestionsPath, id.TestID, id.AccessToken)
	if err != nil {
		slog.Warn("failed to load test", "test_id", id.TestID, "error", err)
		form.Error = appI18n.Td(r.Context(), "TestLoadFailed", map[string]any{"Message": h.fetchMessage(r.Context(), err)})
		h.renderIndex(w, r, http.StatusBadGateway, form)
		return
	}

	def, err := exam.ParseTestDefinition(raw)
	if err != nil {
		slog.Warn("invalid test document", "test_id", id.TestID, "error", err)
		form.Error = appI18n.Td(r.Context(), "TestLoadFailed", map[string]any{"Message": err.Error()})
		h.renderIndex(w, r, http.StatusUnprocessableEntity, form)
		return
	}
	if len(def.Questions) == 0 {
		form.Error = appI18n.T(r.Context(), "TestEmpty")
		h.renderIndex(w, r, http.StatusUnprocessableEntity, form)
		return
	}

	if err := sess.Load(id, def); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	slog.Info("test loaded", "test_id", id.TestID, "questions", len(def.Questions), "student", id.Name)
	http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "email" {
				return "ErrorInvalidEmail"
			}
		}
	}
	return "ErrorRequiredFields"
}

func (h *Handler) fetchMessage(ctx context.Context, err error) string {
	var nf *contentstore.NotFoundError
	if errors.As(err, &nf) {
		return appI18n.Td(ctx, "TestNotFound", map[string]any{"Status": nf.StatusCode})
	}
	return err.Error()
}

func (h *Handler) handleExamPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if h.redirectUnlessInProgress(w, r, sess) {
		return
	}
	if sub, err := sess.AutoSubmitIfExpired(h.now()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	} else if sub != nil {
		h.persist(r.Context(), sess, sub)
		http.Redirect(w, r, h.path("/result"), http.StatusSeeOther)
		return
	}
	h.renderExam(w, r, sess, http.StatusOK, "")
}

func (h *Handler) renderExam(w http.ResponseWriter, r *http.Request, sess *exam.Session, status int, warning string) {
	data := views.NewExamData(sess.Snapshot(), h.now(), warning)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.ExamPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// redirectUnlessInProgress sends the browser to the page matching its phase
// and reports whether it did so.
func (h *Handler) redirectUnlessInProgress(w http.ResponseWriter, r *http.Request, sess *exam.Session) bool {
	switch sess.Snapshot().Phase {
	case exam.PhaseInProgress:
		return false
	case exam.PhaseCompleted:
		http.Redirect(w, r, h.path("/result"), http.StatusSeeOther)
	default:
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
	}
	return true
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if h.redirectUnlessInProgress(w, r, sess) {
		return
	}
	if err := sess.Start(h.now()); err != nil && !errors.Is(err, exam.ErrAlreadyStarted) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	ordinal, err := strconv.Atoi(chi.URLParam(r, "ordinal"))
	if err != nil {
		http.Error(w, "invalid question number", http.StatusBadRequest)
		return
	}

	err = sess.Select(ordinal, r.FormValue("answer"), h.now())
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, exam.ErrTimeExpired), errors.Is(err, exam.ErrInvalidTransition):
		h.autoSubmit(r.Context(), sess)
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "redirect": h.nextPage(sess)})
	case errors.Is(err, exam.ErrOrdinalRange), errors.Is(err, exam.ErrUnknownOption), errors.Is(err, exam.ErrNotStarted):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if h.redirectUnlessInProgress(w, r, sess) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	now := h.now()
	snap := sess.Snapshot()
	for n := 1; n <= len(snap.Test.Questions); n++ {
		key := r.PostForm.Get("q_" + strconv.Itoa(n))
		if key == "" {
			continue
		}
		err := sess.Select(n, key, now)
		if errors.Is(err, exam.ErrInvalidTransition) {
			// Completed by a concurrent timer tick.
			http.Redirect(w, r, h.nextPage(sess), http.StatusSeeOther)
			return
		}
		if err != nil && !errors.Is(err, exam.ErrTimeExpired) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	sub, err := sess.Finish(now)
	if errors.Is(err, exam.ErrUnanswered) {
		open := len(snap.Test.Questions) - len(sess.Snapshot().Answers)
		h.renderExam(w, r, sess, http.StatusUnprocessableEntity, appI18n.Tp(r.Context(), "AnswerAllWarning", open))
		return
	}
	if errors.Is(err, exam.ErrNotStarted) || errors.Is(err, exam.ErrInvalidTransition) {
		http.Redirect(w, r, h.nextPage(sess), http.StatusSeeOther)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	h.persist(r.Context(), sess, sub)
	http.Redirect(w, r, h.path("/result"), http.StatusSeeOther)
}

type timerResponse struct {
	RemainingSeconds int       `json:"remaining_seconds"`
	Display          string    `json:"display"`
	Tier             exam.Tier `json:"tier"`
	FinalMinute      bool      `json:"final_minute"`
	Expired          bool      `json:"expired"`
	Redirect         string    `json:"redirect,omitempty"`
}

// handleTimer is the once-per-second tick of the exam page. Remaining time is
// computed from the wall clock on every call; an expired exam is submitted.
func (h *Handler) handleTimer(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	now := h.now()

	if sess.Snapshot().Phase != exam.PhaseInProgress {
		writeJSON(w, http.StatusOK, timerResponse{Display: exam.Clock(0), Tier: exam.TierExpired, Expired: true, Redirect: h.nextPage(sess)})
		return
	}
	state, ok := sess.Timer(now)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{"error": exam.ErrNotStarted.Error()})
		return
	}

	resp := timerResponse{
		RemainingSeconds: max(int(state.Remaining/time.Second), 0),
		Display:          state.Clock,
		Tier:             state.Tier,
		FinalMinute:      state.FinalMinute,
	}
	if state.Expired() {
		h.autoSubmit(r.Context(), sess)
		resp.Expired = true
		resp.Redirect = h.nextPage(sess)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) autoSubmit(ctx context.Context, sess *exam.Session) {
	sub, err := sess.AutoSubmitIfExpired(h.now())
	if err != nil {
		slog.Error("auto-submit failed", "session", sess.ID(), "error", err)
		return
	}
	if sub != nil {
		h.persist(ctx, sess, sub)
	}
}

func (h *Handler) nextPage(sess *exam.Session) string {
	switch sess.Snapshot().Phase {
	case exam.PhaseInProgress:
		return h.path("/exam")
	case exam.PhaseCompleted:
		return h.path("/result")
	default:
		return h.path("/")
	}
}

// persist writes a fresh submission to the results collection and the local
// journal. A failed remote write is recorded as a warning, never an error.
func (h *Handler) persist(ctx context.Context, sess *exam.Session, sub *exam.Submission) {
	// The write must finish even if the browser navigates away.
	ctx = context.WithoutCancel(ctx)
	rec := sub.Record
	outcome := exam.SaveOutcome{Saved: true}

	err := h.remote.PutDocument(ctx, h.config.ResultsPath, sub.Filename, rec,
		exam.CommitMessage(rec.StudentName, rec.TestID), sess.AccessToken())
	if err != nil {
		slog.Warn("failed to save result", "test_id", rec.TestID, "file", sub.Filename, "error", err)
		outcome = exam.SaveOutcome{Saved: false, Message: err.Error()}
	} else {
		slog.Info("result saved", "test_id", rec.TestID, "file", sub.Filename,
			"score", rec.Score.ScorePercentage, "auto_submitted", rec.AutoSubmitted)
	}
	sess.RecordSave(outcome)

	if err := h.journal.SaveResult(store.JournalEntry{
		AttemptID:   sub.AttemptID,
		Filename:    sub.Filename,
		RemoteSaved: outcome.Saved,
		RemoteError: outcome.Message,
		SubmittedAt: h.now(),
		Record:      rec,
	}); err != nil {
		slog.Error("failed to journal result", "attempt", sub.AttemptID, "error", err)
	}
}

func (h *Handler) handleResultPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	snap := sess.Snapshot()
	if snap.Phase != exam.PhaseCompleted || snap.Submission == nil {
		http.Redirect(w, r, h.nextPage(sess), http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ResultPage(views.NewResultData(snap.Submission, snap.Save)).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	snap := sessionFromContext(r.Context()).Snapshot()
	if snap.Phase != exam.PhaseCompleted || snap.Submission == nil {
		http.Error(w, "no results to download", http.StatusNotFound)
		return
	}
	data, err := json.MarshalIndent(snap.Submission.Report, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	name := fmt.Sprintf("score_report_%d.json", h.now().Unix())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(data)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := sess.Reset(); err != nil && !errors.Is(err, exam.ErrInvalidTransition) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
