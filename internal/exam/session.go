package exam

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pavelanni/examtaker/internal/model"
)

// Phase is the step of the exam flow a session is in.
type Phase string

const (
	PhaseAwaitingIdentity Phase = "awaiting_identity"
	PhaseInProgress       Phase = "in_progress"
	PhaseCompleted        Phase = "completed"
)

var (
	// ErrInvalidTransition is returned for an action not legal in the current phase.
	ErrInvalidTransition = errors.New("action not allowed in current phase")
	// ErrNotStarted is returned when answering or finishing before the timer started.
	ErrNotStarted = errors.New("exam timer has not been started")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("exam timer already started")
	// ErrUnanswered is returned by an explicit finish with questions left open.
	ErrUnanswered = errors.New("all questions must be answered before finishing")
	// ErrOrdinalRange is returned for a question number outside [1, N].
	ErrOrdinalRange = errors.New("question number out of range")
	// ErrUnknownOption is returned for a selection that is not an option key.
	ErrUnknownOption = errors.New("unknown option")
	// ErrTimeExpired is returned when a selection arrives after time ran out.
	ErrTimeExpired = errors.New("exam time has expired")
)

// Submission is the write-once outcome of completing an attempt.
type Submission struct {
	AttemptID string
	Report    model.ScoreReport
	Record    model.ResultRecord
	Filename  string
}

// SaveOutcome records what happened to the remote write of a submission.
type SaveOutcome struct {
	Saved   bool
	Message string
}

// Session is one browser's exam attempt. All methods are safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	id         string
	phase      Phase
	identity   model.StudentIdentity
	test       model.TestDefinition
	startedAt  *time.Time
	answers    Answers
	submission *Submission
	save       *SaveOutcome
	touchedAt  time.Time
}

// NewSession returns a session waiting for the student's identity.
func NewSession(id string, now time.Time) *Session {
	return &Session{id: id, phase: PhaseAwaitingIdentity, touchedAt: now}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot is a read-only copy of session state for rendering.
type Snapshot struct {
	Phase      Phase
	Identity   model.StudentIdentity
	Test       model.TestDefinition
	StartedAt  *time.Time
	Answers    Answers
	Submission *Submission
	Save       *SaveOutcome
}

// Started reports whether the timer was started.
func (s Snapshot) Started() bool { return s.StartedAt != nil }

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers := make(Answers, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	return Snapshot{
		Phase:      s.phase,
		Identity:   s.identity,
		Test:       s.test,
		StartedAt:  s.startedAt,
		Answers:    answers,
		Submission: s.submission,
		Save:       s.save,
	}
}

// Load moves an identified student with a fetched test into PhaseInProgress.
func (s *Session) Load(id model.StudentIdentity, def model.TestDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseAwaitingIdentity {
		return fmt.Errorf("load test: %w", ErrInvalidTransition)
	}
	s.identity = id
	s.test = def
	s.answers = Answers{}
	s.phase = PhaseInProgress
	return nil
}

// Start sets the timer start instant. It cannot be moved once set.
func (s *Session) Start(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return fmt.Errorf("start exam: %w", ErrInvalidTransition)
	}
	if s.startedAt != nil {
		return ErrAlreadyStarted
	}
	s.startedAt = &now
	return nil
}

// Select records key as the answer to question ordinal, replacing any earlier
// selection for that question only.
func (s *Session) Select(ordinal int, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return fmt.Errorf("select answer: %w", ErrInvalidTransition)
	}
	if s.startedAt == nil {
		return ErrNotStarted
	}
	if Evaluate(s.test.DurationMinutes, *s.startedAt, now).Expired() {
		return ErrTimeExpired
	}
	if ordinal < 1 || ordinal > len(s.test.Questions) {
		return fmt.Errorf("%w: %d", ErrOrdinalRange, ordinal)
	}
	if _, ok := s.test.Questions[ordinal-1].Options[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOption, key)
	}
	s.answers[ordinal] = key
	return nil
}

// Timer evaluates the countdown at now. ok is false before Start.
func (s *Session) Timer(now time.Time) (state TimerState, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt == nil {
		return TimerState{}, false
	}
	return Evaluate(s.test.DurationMinutes, *s.startedAt, now), true
}

// Finish is the explicit finish action. Every question must be answered.
func (s *Session) Finish(now time.Time) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return nil, fmt.Errorf("finish exam: %w", ErrInvalidTransition)
	}
	if s.startedAt == nil {
		return nil, ErrNotStarted
	}
	if Evaluate(s.test.DurationMinutes, *s.startedAt, now).Expired() {
		return s.complete(now, true)
	}
	if open := len(s.test.Questions) - len(s.answers); open > 0 {
		return nil, fmt.Errorf("%w: %d unanswered", ErrUnanswered, open)
	}
	return s.complete(now, false)
}

// AutoSubmitIfExpired forces a submission with whatever answers exist once the
// timer has run out. It returns nil, nil when there is nothing to do.
func (s *Session) AutoSubmitIfExpired(now time.Time) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress || s.startedAt == nil {
		return nil, nil
	}
	if !Evaluate(s.test.DurationMinutes, *s.startedAt, now).Expired() {
		return nil, nil
	}
	return s.complete(now, true)
}

func (s *Session) complete(now time.Time, auto bool) (*Submission, error) {
	report, err := Score(s.test.Questions, s.answers)
	if err != nil {
		return nil, err
	}
	taken := int(now.Sub(*s.startedAt) / time.Minute)
	if auto {
		taken = s.test.DurationMinutes
	}
	sub := &Submission{
		AttemptID: NewSuffix(),
		Report:    report,
		Record:    NewResultRecord(s.identity, s.test, report, now, taken, auto),
	}
	sub.Filename = ResultFilename(s.identity.Name, s.identity.TestID, now, sub.AttemptID)
	s.submission = sub
	s.phase = PhaseCompleted
	return sub, nil
}

// RecordSave stores the outcome of the remote write of the submission.
func (s *Session) RecordSave(outcome SaveOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save = &outcome
}

// AccessToken returns the credential for remote store calls.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.AccessToken
}

// Reset discards the attempt, finished or not, and returns to
// PhaseAwaitingIdentity. An unfinished attempt is abandoned without a result.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseAwaitingIdentity {
		return fmt.Errorf("reset: %w", ErrInvalidTransition)
	}
	s.phase = PhaseAwaitingIdentity
	s.identity = model.StudentIdentity{}
	s.test = model.TestDefinition{}
	s.startedAt = nil
	s.answers = nil
	s.submission = nil
	s.save = nil
	return nil
}

// holdsAttempt reports whether the timer was started and no result exists yet.
func (s *Session) holdsAttempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseInProgress && s.startedAt != nil
}

func (s *Session) timerRunning(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseInProgress && s.startedAt != nil &&
		!Evaluate(s.test.DurationMinutes, *s.startedAt, now).Expired()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.touchedAt = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt
}
