package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examtaker/internal/contentstore"
	"github.com/pavelanni/examtaker/internal/exam"
	appI18n "github.com/pavelanni/examtaker/internal/i18n"
	"github.com/pavelanni/examtaker/internal/model"
	"github.com/pavelanni/examtaker/internal/store"
)

const testDoc = `{
  "subject": "Geography",
  "difficulty": "Easy",
  "topics": ["Capitals"],
  "teacher_name": "Ms. Smith",
  "created_at": "2024-03-01T10:00:00Z",
  "exam_duration_minutes": 30,
  "questions": [
    {"question_text": "Capital of France?", "options": {"A": "Paris", "B": "Rome"}, "correct_answer": "A"},
    {"question_text": "Capital of Italy?", "options": {"A": "Paris", "B": "Rome"}, "correct_answer": "B"}
  ]
}`

type putCall struct {
	collection, name, message, credential string
	payload                               model.ResultRecord
}

type fakeRemote struct {
	mu      sync.Mutex
	docs    map[string]string
	putErr  error
	puts    []putCall
	fetched []string
}

func (f *fakeRemote) FetchDocument(_ context.Context, collection, documentID, credential string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, collection+"/"+documentID+":"+credential)
	doc, ok := f.docs[documentID]
	if !ok {
		return nil, &contentstore.NotFoundError{Path: collection + "/" + documentID + ".json", StatusCode: http.StatusNotFound}
	}
	return json.RawMessage(doc), nil
}

func (f *fakeRemote) PutDocument(_ context.Context, collection, name string, payload any, message, credential string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, _ := payload.(model.ResultRecord)
	f.puts = append(f.puts, putCall{collection: collection, name: name, message: message, credential: credential, payload: rec})
	return f.putErr
}

func (f *fakeRemote) putCalls() []putCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]putCall(nil), f.puts...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t       *testing.T
	h       *Handler
	srv     *httptest.Server
	client  *http.Client
	remote  *fakeRemote
	journal *store.Store
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	journal, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	remote := &fakeRemote{docs: map[string]string{"geo": testDoc}}
	h, err := New(remote, journal, model.AppConfig{
		QuestionsPath: "questions",
		ResultsPath:   "students_solution",
		SessionTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	h.now = clock.Now

	r := chi.NewRouter()
	r.Use(h.BasePathMiddleware)
	r.Use(appI18n.Middleware("en", ""))
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	return &harness{t: t, h: h, srv: srv, client: &http.Client{Jar: jar}, remote: remote, journal: journal, clock: clock}
}

func (hs *harness) csrf() string {
	u, _ := url.Parse(hs.srv.URL)
	for _, c := range hs.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	return ""
}

func (hs *harness) get(path string) (*http.Response, string) {
	hs.t.Helper()
	resp, err := hs.client.Get(hs.srv.URL + path)
	if err != nil {
		hs.t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(hs.t, resp)
}

func (hs *harness) post(path string, form url.Values) (*http.Response, string) {
	hs.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", hs.csrf())
	resp, err := hs.client.PostForm(hs.srv.URL+path, form)
	if err != nil {
		hs.t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(hs.t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func identityForm(testID string) url.Values {
	return url.Values{
		"name":         {"Jane Doe"},
		"email":        {"jane@example.com"},
		"student_id":   {"S-1"},
		"test_id":      {testID},
		"access_token": {"tok-123"},
	}
}

// loadAndStart walks the browser through identity, load and start.
func (hs *harness) loadAndStart() {
	hs.t.Helper()
	hs.get("/")
	resp, body := hs.post("/load", identityForm("geo"))
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Start Test") {
		hs.t.Fatalf("load: status %d, body lacks start screen", resp.StatusCode)
	}
	resp, _ = hs.post("/exam/start", nil)
	if resp.StatusCode != http.StatusOK {
		hs.t.Fatalf("start: status %d", resp.StatusCode)
	}
}

func TestFullAttemptSavesResult(t *testing.T) {
	hs := newHarness(t)
	hs.loadAndStart()
	hs.clock.Advance(12*time.Minute + 30*time.Second)

	resp, body := hs.post("/exam/finish", url.Values{"q_1": {"A"}, "q_2": {"A"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finish: status %d", resp.StatusCode)
	}
	if !strings.HasSuffix(resp.Request.URL.Path, "/result") {
		t.Errorf("finish landed on %s, want /result", resp.Request.URL.Path)
	}
	if !strings.Contains(body, "Results saved successfully!") {
		t.Error("result page missing save confirmation")
	}
	if !strings.Contains(body, "50.0%") {
		t.Error("result page missing 50.0% score")
	}

	puts := hs.remote.putCalls()
	if len(puts) != 1 {
		t.Fatalf("got %d remote writes, want 1", len(puts))
	}
	p := puts[0]
	if p.collection != "students_solution" {
		t.Errorf("collection = %q, want students_solution", p.collection)
	}
	if !strings.HasPrefix(p.name, "Jane_Doe_geo_") || !strings.HasSuffix(p.name, ".json") {
		t.Errorf("filename = %q", p.name)
	}
	if p.message != "Add student result: Jane Doe - geo" {
		t.Errorf("message = %q", p.message)
	}
	if p.credential != "tok-123" {
		t.Errorf("credential = %q, want tok-123", p.credential)
	}
	rec := p.payload
	if rec.TimeTakenMinutes != 12 || rec.AutoSubmitted {
		t.Errorf("time taken %d auto %v, want 12 false", rec.TimeTakenMinutes, rec.AutoSubmitted)
	}
	if rec.Score.CorrectAnswers != 1 || rec.Score.TotalQuestions != 2 {
		t.Errorf("score = %+v", rec.Score)
	}

	entries, err := hs.journal.ListResults("geo")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(entries) != 1 || !entries[0].RemoteSaved {
		t.Errorf("journal = %+v, want one saved entry", entries)
	}

	// A second finish must not produce another result.
	hs.post("/exam/finish", url.Values{"q_1": {"A"}, "q_2": {"B"}})
	if n := len(hs.remote.putCalls()); n != 1 {
		t.Errorf("remote writes after second finish = %d, want 1", n)
	}
}

func TestFinishWithUnansweredQuestions(t *testing.T) {
	hs := newHarness(t)
	hs.loadAndStart()

	resp, body := hs.post("/exam/finish", url.Values{"q_1": {"A"}})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if !strings.Contains(body, "1 question is unanswered") {
		t.Error("missing unanswered warning")
	}
	if !strings.Contains(body, `data-question="1" checked`) {
		t.Error("selection for question 1 was not kept")
	}
	if n := len(hs.remote.putCalls()); n != 0 {
		t.Errorf("remote writes = %d, want 0", n)
	}
}

func TestAutoSubmitOnExpiry(t *testing.T) {
	hs := newHarness(t)
	hs.loadAndStart()

	resp, _ := hs.post("/exam/answer/1", url.Values{"answer": {"A"}})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("answer: status %d, want 204", resp.StatusCode)
	}

	hs.clock.Advance(29 * time.Minute)
	_, body := hs.get("/exam/timer")
	var tick timerResponse
	if err := json.Unmarshal([]byte(body), &tick); err != nil {
		t.Fatalf("decode timer: %v", err)
	}
	if tick.Expired || !tick.FinalMinute || tick.Display != "00:01:00" || tick.Tier != "critical" {
		t.Errorf("tick at 29m = %+v", tick)
	}

	hs.clock.Advance(time.Minute)
	_, body = hs.get("/exam/timer")
	if err := json.Unmarshal([]byte(body), &tick); err != nil {
		t.Fatalf("decode timer: %v", err)
	}
	if !tick.Expired || tick.Redirect != "/result" {
		t.Errorf("tick at 30m = %+v, want expired with redirect", tick)
	}

	puts := hs.remote.putCalls()
	if len(puts) != 1 {
		t.Fatalf("remote writes = %d, want 1", len(puts))
	}
	rec := puts[0].payload
	if !rec.AutoSubmitted || rec.TimeTakenMinutes != 30 {
		t.Errorf("auto %v time %d, want true 30", rec.AutoSubmitted, rec.TimeTakenMinutes)
	}
	if rec.Score.Results[1].StudentAnswer != nil {
		t.Error("unanswered question should record no answer")
	}

	resp, _ = hs.post("/exam/answer/2", url.Values{"answer": {"B"}})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("answer after expiry: status %d, want 409", resp.StatusCode)
	}
	if n := len(hs.remote.putCalls()); n != 1 {
		t.Errorf("remote writes = %d, want 1", n)
	}
}

func TestRemoteWriteFailureStillShowsReport(t *testing.T) {
	hs := newHarness(t)
	hs.remote.putErr = &contentstore.WriteError{Path: "students_solution/x.json", StatusCode: http.StatusForbidden, Body: "nope"}
	hs.loadAndStart()

	_, body := hs.post("/exam/finish", url.Values{"q_1": {"A"}, "q_2": {"B"}})
	if !strings.Contains(body, "Could not save results") {
		t.Error("missing save warning")
	}
	if !strings.Contains(body, "100.0%") {
		t.Error("report not shown after failed write")
	}

	entries, err := hs.journal.ListResults("geo")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(entries) != 1 || entries[0].RemoteSaved || entries[0].RemoteError == "" {
		t.Errorf("journal = %+v, want one unsaved entry with error", entries)
	}

	resp, download := hs.get("/result/download")
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "score_report_") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var report model.ScoreReport
	if err := json.Unmarshal([]byte(download), &report); err != nil {
		t.Fatalf("decode download: %v", err)
	}
	if report.CorrectAnswers != 2 || report.ScorePercentage != 100 {
		t.Errorf("downloaded report = %+v", report)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		docs map[string]string
		want string
	}{
		{
			name: "missing name",
			form: url.Values{"test_id": {"geo"}, "access_token": {"t"}},
			want: "Please fill in all required fields",
		},
		{
			name: "bad email",
			form: url.Values{"name": {"Jane"}, "email": {"not-an-email"}, "test_id": {"geo"}, "access_token": {"t"}},
			want: "Please enter a valid email address",
		},
		{
			name: "unknown test",
			form: identityForm("nope"),
			want: "Test not found: 404",
		},
		{
			name: "empty test",
			form: identityForm("empty"),
			docs: map[string]string{"empty": `{"subject": "X", "questions": []}`},
			want: "This test has no questions.",
		},
		{
			name: "malformed test",
			form: identityForm("broken"),
			docs: map[string]string{"broken": `{"questions": [{"question_text": "Q", "options": {"A": "a"}, "correct_answer": "Z"}]}`},
			want: "Failed to load test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t)
			for k, v := range tt.docs {
				hs.remote.docs[k] = v
			}
			hs.get("/")
			resp, body := hs.post("/load", tt.form)
			if resp.StatusCode == http.StatusOK {
				t.Fatalf("status = 200, want an error status")
			}
			if !strings.Contains(body, tt.want) {
				t.Errorf("body does not contain %q", tt.want)
			}
			if !strings.Contains(body, `name="test_id"`) {
				t.Error("identity form not re-rendered")
			}
		})
	}
}

func TestResetStartsOver(t *testing.T) {
	hs := newHarness(t)
	hs.loadAndStart()
	hs.post("/exam/finish", url.Values{"q_1": {"A"}, "q_2": {"B"}})

	resp, body := hs.post("/reset", nil)
	if !strings.HasSuffix(resp.Request.URL.Path, "/") || !strings.Contains(body, `name="access_token"`) {
		t.Errorf("reset landed on %s without the identity form", resp.Request.URL.Path)
	}

	resp, _ = hs.get("/result")
	if strings.HasSuffix(resp.Request.URL.Path, "/result") {
		t.Error("result page still reachable after reset")
	}
}

func TestCSRFRequired(t *testing.T) {
	hs := newHarness(t)
	hs.get("/")

	resp, err := hs.client.PostForm(hs.srv.URL+"/load", identityForm("geo"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, hs.srv.URL+"/load", strings.NewReader(identityForm("geo").Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(csrfHeaderName, hs.csrf())
	resp, err = hs.client.Do(req)
	if err != nil {
		t.Fatalf("POST with header: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("header token: status = %d, want 200", resp.StatusCode)
	}
}

func TestTimerBeforeStart(t *testing.T) {
	hs := newHarness(t)
	hs.get("/")
	hs.post("/load", identityForm("geo"))

	resp, _ := hs.get("/exam/timer")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, nil, model.AppConfig{}); err == nil {
		t.Error("expected error without content store")
	}
	if _, err := New(&fakeRemote{}, nil, model.AppConfig{}); err == nil {
		t.Error("expected error without journal")
	}
}

func TestValidationMessage(t *testing.T) {
	if got := validationMessage(errors.New("boom")); got != "ErrorRequiredFields" {
		t.Errorf("validationMessage(other) = %q", got)
	}
}

func TestCleanupSubmitsExpiredAttempt(t *testing.T) {
	hs := newHarness(t)
	hs.loadAndStart()
	hs.post("/exam/answer/1", url.Values{"answer": {"A"}})

	// The browser is closed; the sweeper runs after both the exam and the idle TTL ran out.
	hs.clock.Advance(2 * time.Hour)
	if n := hs.h.CleanupSessions(); n != 1 {
		t.Fatalf("CleanupSessions removed %d, want 1", n)
	}

	puts := hs.remote.putCalls()
	if len(puts) != 1 {
		t.Fatalf("remote writes = %d, want 1", len(puts))
	}
	if rec := puts[0].payload; !rec.AutoSubmitted || rec.Score.CorrectAnswers != 1 {
		t.Errorf("record = %+v", rec)
	}
	if n, _ := hs.journal.ResultCount(); n != 1 {
		t.Errorf("journaled results = %d, want 1", n)
	}
}

func TestCleanupKeepsRunningAttempt(t *testing.T) {
	hs := newHarness(t)
	hs.h.sessions = exam.NewRegistry(5 * time.Minute)
	hs.loadAndStart()

	hs.clock.Advance(20 * time.Minute)
	if n := hs.h.CleanupSessions(); n != 0 {
		t.Fatalf("CleanupSessions removed %d sessions with a running timer", n)
	}
	resp, body := hs.get("/exam")
	if !strings.HasSuffix(resp.Request.URL.Path, "/exam") || !strings.Contains(body, "Finish Test") {
		t.Errorf("in-progress exam lost after cleanup, landed on %s", resp.Request.URL.Path)
	}
}

func TestFinishAfterConcurrentAutoSubmit(t *testing.T) {
	journal, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { journal.Close() })
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	h, err := New(&fakeRemote{}, journal, model.AppConfig{ResultsPath: "students_solution"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	sess := h.sessions.Create(start)
	def, err := exam.ParseTestDefinition([]byte(testDoc))
	if err != nil {
		t.Fatalf("ParseTestDefinition: %v", err)
	}
	if err := sess.Load(model.StudentIdentity{Name: "Jane", TestID: "geo", AccessToken: "tok"}, def); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := sess.Start(start); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A timer tick completes the attempt between the phase check and the
	// answers being applied.
	late := start.Add(31 * time.Minute)
	h.now = func() time.Time {
		if _, err := sess.AutoSubmitIfExpired(late); err != nil {
			t.Errorf("AutoSubmitIfExpired: %v", err)
		}
		return late
	}

	form := url.Values{"q_1": {"A"}, "q_2": {"B"}}
	req := httptest.NewRequest(http.MethodPost, "/exam/finish", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(context.WithValue(req.Context(), sessionKey{}, sess))
	rec := httptest.NewRecorder()
	h.handleFinish(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/result" {
		t.Errorf("Location = %q, want /result", loc)
	}
}
