package consult

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/arogya/internal/assessment"
	"github.com/MikeSquared-Agency/arogya/internal/intake"
	"github.com/MikeSquared-Agency/arogya/internal/llm"
	"github.com/MikeSquared-Agency/arogya/internal/locales"
	"github.com/MikeSquared-Agency/arogya/internal/notify"
	"github.com/MikeSquared-Agency/arogya/internal/report"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrReportNotReady      = errors.New("report not ready")
	ErrEmptyMessage        = errors.New("empty message")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// NotReadyError explains, in the session language, why no report exists yet.
type NotReadyError struct {
	Message string
	Missing []string
}

func (e *NotReadyError) Error() string { return e.Message }

func (e *NotReadyError) Is(target error) bool { return target == ErrReportNotReady }

// SessionStore persists session state between replicas. Load reports false
// when the session is unknown or expired.
type SessionStore interface {
	SaveSession(ctx context.Context, id string, state []byte, expiresAt time.Time) error
	LoadSession(ctx context.Context, id string) ([]byte, bool, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Publisher emits events. notify.Client implements it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Alerter forwards emergency alerts to staff.
type Alerter interface {
	PostEmergency(ctx context.Context, sessionID, keyword, excerpt string) error
}

// Options configures a Service. Store, Publisher and Alerter are optional.
type Options struct {
	Policy    intake.Policy
	TTL       time.Duration
	Store     SessionStore
	Publisher Publisher
	Alerter   Alerter
	Now       func() time.Time
}

// Service owns every intake session. Turns of one session run one at a time;
// different sessions proceed in parallel.
type Service struct {
	llm       llm.Client
	assembler *report.Assembler
	exporter  *report.Exporter
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id string
	// lock is a one-slot semaphore so waiting turns can give up on ctx.
	lock chan struct{}
	// lastSeen is guarded by Service.mu.
	lastSeen time.Time

	conv   *intake.Conversation
	report *report.Report
}

// persisted is the stored form of a session.
type persisted struct {
	Conversation *intake.Conversation `json:"conversation"`
	Report       *report.Report       `json:"report,omitempty"`
}

func New(client llm.Client, assembler *report.Assembler, exporter *report.Exporter, opts Options, logger *slog.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		llm:       client,
		assembler: assembler,
		exporter:  exporter,
		opts:      opts,
		logger:    logger,
		sessions:  make(map[string]*session),
	}
}

func newSession(id string, conv *intake.Conversation, r *report.Report, now time.Time) *session {
	return &session{id: id, lock: make(chan struct{}, 1), lastSeen: now, conv: conv, report: r}
}

func (s *session) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) release() { <-s.lock }

// Snapshot is the client view of a session.
type Snapshot struct {
	SessionID          string           `json:"session_id"`
	Language           string           `json:"language"`
	Greeting           string           `json:"greeting"`
	Phase              intake.Phase     `json:"phase"`
	Patient            intake.Patient   `json:"patient"`
	Emergency          bool             `json:"emergency"`
	AssessmentComplete bool             `json:"assessment_complete"`
	ReportReady        bool             `json:"report_ready"`
	PDFAvailable       bool             `json:"pdf_available"`
	Transcript         []intake.Message `json:"transcript"`
}

// Turn is the result of one user message.
type Turn struct {
	SessionID      string               `json:"session_id"`
	Reply          string               `json:"reply"`
	Phase          intake.Phase         `json:"phase"`
	Patient        intake.Patient       `json:"patient"`
	Emergency      bool                 `json:"emergency"`
	EmergencyAlert string               `json:"emergency_alert,omitempty"`
	InfoRequest    string               `json:"info_request,omitempty"`
	Sections       []assessment.Section `json:"sections,omitempty"`
	ReportReady    bool                 `json:"report_ready"`
	// Degraded is set when no provider answered and Reply is an apology.
	Degraded bool `json:"degraded,omitempty"`
}

// Start opens a session. An empty language selects English.
func (s *Service) Start(ctx context.Context, language string) (*Snapshot, error) {
	lang := locales.English
	if language != "" {
		var ok bool
		if lang, ok = locales.Parse(language); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
		}
	}

	id := uuid.NewString()
	sess := newSession(id, intake.NewConversation(string(lang), s.opts.Policy), nil, s.opts.Now())

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.save(ctx, sess)
	s.logger.Info("session started", "session_id", id, "language", lang)
	return s.snapshot(sess), nil
}

// Send runs one conversation turn.
func (s *Service) Send(ctx context.Context, id, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.acquire(ctx); err != nil {
		return nil, err
	}
	defer sess.release()

	conv := sess.conv
	strs := locales.Get(locales.Language(conv.Language))
	turn := &Turn{SessionID: id}

	uo := conv.ObserveUser(text)
	if uo.Emergency {
		turn.EmergencyAlert = strs.EmergencyAlert
		s.emergency(ctx, sess, uo.Keyword, text)
	}
	if uo.ReportSource != "" {
		s.buildReport(sess, uo.ReportSource)
	}

	if uo.Reprompt {
		msg := strs.InfoRequestFor(uo.Missing)
		conv.Say(msg)
		turn.Reply = msg
		turn.InfoRequest = msg
		return s.finish(ctx, sess, turn), nil
	}

	prompt := intake.BuildPrompt(text, conv)
	reply, err := s.llm.Complete(ctx, intake.SystemPrompt, toLLM(intake.RequestMessages(conv, prompt)))
	if err != nil {
		s.logger.Error("llm call failed", "session_id", id, "error", err)
		turn.Reply = strs.ErrorApology
		turn.Degraded = true
		return s.finish(ctx, sess, turn), nil
	}

	ro := conv.ObserveReply(reply)
	turn.Reply = ro.Content
	turn.Sections = ro.Sections
	if ro.Assessment {
		s.logger.Info("assessment complete", "session_id", id, "sections", len(ro.Sections))
	}
	if ro.ReportSource != "" {
		s.buildReport(sess, ro.ReportSource)
	}
	if ro.NeedsInfo {
		msg := strs.InfoRequestFor(ro.Missing)
		conv.Say(msg)
		turn.InfoRequest = msg
	}
	return s.finish(ctx, sess, turn), nil
}

func (s *Service) finish(ctx context.Context, sess *session, turn *Turn) *Turn {
	turn.Phase = sess.conv.Phase
	turn.Patient = sess.conv.Patient
	turn.Emergency = sess.conv.Emergency
	turn.ReportReady = sess.report != nil
	s.save(ctx, sess)
	return turn
}

func toLLM(msgs []intake.Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func (s *Service) buildReport(sess *session, source string) {
	conv := sess.conv
	r := s.assembler.Assemble(assessment.Parse(source), conv.Patient, conv.Emergency, conv.Language)
	sess.report = r
	s.logger.Info("report generated", "session_id", sess.id, "report_id", r.Header.ReportID)

	s.publish(notify.SubjectReportGenerated, notify.ReportEvent{
		SessionID:   sess.id,
		ReportID:    r.Header.ReportID,
		Language:    conv.Language,
		Sections:    len(r.Sections),
		Emergency:   r.Emergency,
		GeneratedAt: r.Header.GeneratedAt,
	})
}

func (s *Service) emergency(ctx context.Context, sess *session, keyword, text string) {
	s.logger.Warn("emergency keyword detected", "session_id", sess.id, "keyword", keyword)
	s.publish(notify.SubjectEmergency, notify.EmergencyEvent{
		SessionID:  sess.id,
		Keyword:    keyword,
		Language:   sess.conv.Language,
		DetectedAt: s.opts.Now(),
	})
	if s.opts.Alerter != nil {
		if err := s.opts.Alerter.PostEmergency(ctx, sess.id, keyword, excerpt(text, 200)); err != nil {
			s.logger.Error("emergency alert failed", "session_id", sess.id, "error", err)
		}
	}
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func (s *Service) publish(subject string, data any) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.Publish(subject, data); err != nil {
		s.logger.Error("event publish failed", "subject", subject, "error", err)
	}
}

// Snapshot returns the current state of a session.
func (s *Service) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.acquire(ctx); err != nil {
		return nil, err
	}
	defer sess.release()
	return s.snapshot(sess), nil
}

func (s *Service) snapshot(sess *session) *Snapshot {
	conv := sess.conv.Clone()
	return &Snapshot{
		SessionID:          sess.id,
		Language:           conv.Language,
		Greeting:           locales.Get(locales.Language(conv.Language)).Greeting,
		Phase:              conv.Phase,
		Patient:            conv.Patient,
		Emergency:          conv.Emergency,
		AssessmentComplete: conv.AssessmentComplete(),
		ReportReady:        conv.ReportGenerated(),
		PDFAvailable:       s.exporter.PDFAvailable(),
		Transcript:         conv.Transcript,
	}
}

// SetLanguage switches the session language. Sessions with at most two
// transcript entries restart from the translated greeting.
func (s *Service) SetLanguage(ctx context.Context, id, language string) (*Snapshot, error) {
	lang, ok := locales.Parse(language)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.acquire(ctx); err != nil {
		return nil, err
	}
	defer sess.release()

	if sess.conv.SetLanguage(string(lang), locales.Get(lang).Greeting) {
		sess.report = nil
	}
	s.save(ctx, sess)
	return s.snapshot(sess), nil
}

// Report returns the session report. It fails with a *NotReadyError until an
// assessment exists and name, age and gender are known.
func (s *Service) Report(ctx context.Context, id string) (*report.Report, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.acquire(ctx); err != nil {
		return nil, err
	}
	defer sess.release()

	conv := sess.conv
	strs := locales.Get(locales.Language(conv.Language))
	if !conv.AssessmentComplete() {
		return nil, &NotReadyError{Message: strs.ConsultationRequired}
	}
	if missing := conv.Patient.Missing(); len(missing) > 0 {
		return nil, &NotReadyError{Message: strs.DetailsRequiredFor(missing), Missing: missing}
	}
	if sess.report == nil {
		src, ok := conv.LatestAssessment()
		if !ok || !conv.ReportGenerated() {
			return nil, &NotReadyError{Message: strs.ConsultationRequired}
		}
		s.buildReport(sess, src)
		s.save(ctx, sess)
	}
	return sess.report, nil
}

// Export renders the session report in format, degrading as report.Exporter
// describes.
func (s *Service) Export(ctx context.Context, id string, format report.Format) (*report.Document, error) {
	r, err := s.Report(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.exporter.Export(r, format)
	if err != nil {
		return nil, fmt.Errorf("export report: %w", err)
	}
	if doc.Degraded {
		s.logger.Warn("report export degraded", "session_id", id, "requested", format, "served", doc.Format)
	}
	return doc, nil
}

// End closes a session and removes it from memory and the store. A turn in
// flight finishes first.
func (s *Service) End(ctx context.Context, id string) error {
	sess, err := s.session(ctx, id)
	if err != nil {
		return err
	}
	if err := sess.acquire(ctx); err != nil {
		return err
	}
	defer sess.release()

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if s.opts.Store != nil {
		if err := s.opts.Store.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	s.logger.Info("session ended", "session_id", id)
	return nil
}

// session finds a session in memory, falling back to the store.
func (s *Service) session(ctx context.Context, id string) (*session, error) {
	now := s.opts.Now()
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.lastSeen = now
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	if s.opts.Store == nil {
		return nil, ErrSessionNotFound
	}
	data, found, err := s.opts.Store.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil, ErrSessionNotFound
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil || p.Conversation == nil {
		return nil, fmt.Errorf("decode session %s: %w", id, errors.Join(err, ErrSessionNotFound))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.lastSeen = now
		return sess, nil
	}
	sess := newSession(id, p.Conversation, p.Report, now)
	s.sessions[id] = sess
	s.logger.Debug("session restored from store", "session_id", id)
	return sess, nil
}

// save writes the session through to the store. Failures are logged; the
// in-memory session stays authoritative.
func (s *Service) save(ctx context.Context, sess *session) {
	if s.opts.Store == nil {
		return
	}
	data, err := json.Marshal(persisted{Conversation: sess.conv, Report: sess.report})
	if err != nil {
		s.logger.Error("encode session failed", "session_id", sess.id, "error", err)
		return
	}
	if err := s.opts.Store.SaveSession(ctx, sess.id, data, s.opts.Now().Add(s.opts.TTL)); err != nil {
		s.logger.Error("save session failed", "session_id", sess.id, "error", err)
	}
}

// Sweep evicts sessions idle for longer than the TTL. Sessions with a turn in
// flight are skipped. It returns the number evicted.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) <= s.opts.TTL {
			continue
		}
		select {
		case sess.lock <- struct{}{}:
		default:
			continue
		}
		delete(s.sessions, id)
		sess.release()
		evicted++
	}
	return evicted
}

// Len returns the number of sessions held in memory.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		s.logger.Warn("janitor disabled, interval must be positive", "interval", every)
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.opts.Now()
			if n := s.Sweep(now); n > 0 {
				s.logger.Info("evicted idle sessions", "count", n)
			}
			if s.opts.Store != nil {
				n, err := s.opts.Store.DeleteExpired(ctx, now)
				if err != nil {
					s.logger.Error("delete expired sessions failed", "error", err)
				} else if n > 0 {
					s.logger.Info("deleted expired sessions", "count", n)
				}
			}
		}
	}
}
