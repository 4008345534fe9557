package consult

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/arogya/internal/intake"
	"github.com/MikeSquared-Agency/arogya/internal/llm"
	"github.com/MikeSquared-Agency/arogya/internal/notify"
	"github.com/MikeSquared-Agency/arogya/internal/report"
)

const assessmentReply = `🧾 **Symptom Summary**
Fever for three days with body ache.

🧠 Possible Non-Diagnostic Explanation
Likely a viral fever.

🧘 Lifestyle Guidance
* Rest
* Fluids

📅 When to See a Doctor
If fever crosses 103F.`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests [][]llm.Message
	systems  []string
}

func (f *scriptedLLM) Complete(ctx context.Context, system string, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, messages)
	f.systems = append(f.systems, system)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "Could you tell me more?", nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *scriptedLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type memStore struct {
	mu   sync.Mutex
	rows map[string][]byte
}

func newMemStore() *memStore { return &memStore{rows: map[string][]byte{}} }

func (m *memStore) SaveSession(ctx context.Context, id string, state []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id] = state
	return nil
}

func (m *memStore) LoadSession(ctx context.Context, id string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.rows[id]
	return data, ok, nil
}

func (m *memStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

type recordingAlerter struct {
	keywords []string
}

func (a *recordingAlerter) PostEmergency(ctx context.Context, sessionID, keyword, excerpt string) error {
	a.keywords = append(a.keywords, keyword)
	return errors.New("slack down")
}

func newService(client llm.Client, opts Options) *Service {
	if opts.Policy == (intake.Policy{}) {
		opts.Policy = intake.DefaultPolicy()
	}
	return New(client, report.NewAssembler(), report.NewExporter("", discardLogger()), opts, discardLogger())
}

func TestService_FullConsultation(t *testing.T) {
	ctx := context.Background()
	fake := &scriptedLLM{replies: []string{"How many days have you had the fever?", assessmentReply}}
	pub := &recordingPublisher{}
	svc := newService(fake, Options{Publisher: pub})

	snap, err := svc.Start(ctx, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.Contains(snap.Greeting, "Dr. Arogya") || snap.Phase != intake.PhaseIntake {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	id := snap.SessionID

	turn, err := svc.Send(ctx, id, "I have a fever")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.Reply != "How many days have you had the fever?" || turn.Phase != intake.PhaseIntake {
		t.Errorf("unexpected turn %+v", turn)
	}

	turn, err = svc.Send(ctx, id, "three days, with body ache and I feel weak all the time")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.Phase != intake.PhaseInfoCollection || turn.InfoRequest == "" {
		t.Fatalf("expected info collection with a request, got %+v", turn)
	}
	if strings.Contains(turn.Reply, "*") {
		t.Errorf("reply not cleaned: %q", turn.Reply)
	}

	_, err = svc.Report(ctx, id)
	var nre *NotReadyError
	if !errors.As(err, &nre) || !errors.Is(err, ErrReportNotReady) {
		t.Fatalf("expected NotReadyError, got %v", err)
	}
	if len(nre.Missing) != 3 {
		t.Errorf("expected three missing fields, got %v", nre.Missing)
	}

	before := fake.calls()
	turn, err = svc.Send(ctx, id, "Priya")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if fake.calls() != before {
		t.Error("short incomplete answer must not call the model")
	}
	if !strings.Contains(turn.Reply, "age, gender/sex") {
		t.Errorf("expected re-prompt for age and gender, got %q", turn.Reply)
	}

	turn, err = svc.Send(ctx, id, "I'm 29, female")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !turn.ReportReady || turn.Phase != intake.PhaseReportReady {
		t.Fatalf("expected report ready, got %+v", turn)
	}

	r, err := svc.Report(ctx, id)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if r.Header.Name != "Priya" || r.Header.Age != "29" || r.Header.Gender != "Female" {
		t.Errorf("unexpected header %+v", r.Header)
	}
	if len(r.Sections) != 4 {
		t.Errorf("expected 4 sections, got %d", len(r.Sections))
	}

	doc, err := svc.Export(ctx, id, report.FormatPDF)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if doc.Format != report.FormatText || !doc.Degraded {
		t.Errorf("expected degraded text export without licence, got %s", doc.Format)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.subjects) != 1 || pub.subjects[0] != notify.SubjectReportGenerated {
		t.Errorf("expected one report event, got %v", pub.subjects)
	}
}

func TestService_RequestShape(t *testing.T) {
	ctx := context.Background()
	fake := &scriptedLLM{}
	svc := newService(fake, Options{})

	snap, _ := svc.Start(ctx, "english")
	if _, err := svc.Send(ctx, snap.SessionID, "I have a cough"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.Send(ctx, snap.SessionID, "since yesterday"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if fake.systems[1] != intake.SystemPrompt {
		t.Error("expected the system prompt on every call")
	}
	req := fake.requests[1]
	if len(req) != 3 {
		t.Fatalf("expected transcript of 3, got %d", len(req))
	}
	if req[0].Content != "I have a cough" {
		t.Errorf("earlier turns must be sent verbatim, got %q", req[0].Content)
	}
	if !strings.Contains(req[2].Content, `"since yesterday"`) || req[2].Role != llm.RoleUser {
		t.Errorf("last user turn should be the built prompt, got %+v", req[2])
	}
}

func TestService_LLMFailure(t *testing.T) {
	ctx := context.Background()
	svc := newService(&scriptedLLM{err: llm.ErrNoProvider}, Options{})

	snap, _ := svc.Start(ctx, "hindi")
	turn, err := svc.Send(ctx, snap.SessionID, "सिर दर्द")
	if err != nil {
		t.Fatalf("turn must not fail: %v", err)
	}
	if !turn.Degraded || !strings.Contains(turn.Reply, "क्षमा") {
		t.Errorf("expected hindi apology, got %+v", turn)
	}

	got, _ := svc.Snapshot(ctx, snap.SessionID)
	if len(got.Transcript) != 1 || got.Transcript[0].Role != intake.RoleUser {
		t.Errorf("expected only the user message recorded, got %+v", got.Transcript)
	}
	if got.Phase != intake.PhaseIntake {
		t.Errorf("phase changed on failure: %s", got.Phase)
	}
}

func TestService_Emergency(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	alerter := &recordingAlerter{}
	svc := newService(&scriptedLLM{}, Options{Publisher: pub, Alerter: alerter})

	snap, _ := svc.Start(ctx, "")
	turn, err := svc.Send(ctx, snap.SessionID, "my father has chest pain")
	if err != nil {
		t.Fatalf("alert failure must not fail the turn: %v", err)
	}
	if !turn.Emergency || !strings.Contains(turn.EmergencyAlert, "108") {
		t.Errorf("expected emergency alert, got %+v", turn)
	}
	if len(alerter.keywords) != 1 || alerter.keywords[0] != "chest pain" {
		t.Errorf("unexpected alerts %v", alerter.keywords)
	}

	turn, _ = svc.Send(ctx, snap.SessionID, "he is resting now")
	if !turn.Emergency || turn.EmergencyAlert != "" {
		t.Errorf("flag stays set but the alert fires once per matching message, got %+v", turn)
	}
}

func TestService_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newService(&scriptedLLM{}, Options{})

	if _, err := svc.Send(ctx, "missing", "hello"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	snap, _ := svc.Start(ctx, "")
	if _, err := svc.Send(ctx, snap.SessionID, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.Start(ctx, "klingon"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
	if _, err := svc.Report(ctx, snap.SessionID); !errors.Is(err, ErrReportNotReady) {
		t.Errorf("expected ErrReportNotReady, got %v", err)
	}
}

type blockingLLM struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingLLM) Complete(ctx context.Context, system string, messages []llm.Message) (string, error) {
	b.started <- struct{}{}
	<-b.release
	return "ok", nil
}

func TestService_TurnsAreSequenced(t *testing.T) {
	ctx := context.Background()
	b := &blockingLLM{started: make(chan struct{}, 1), release: make(chan struct{})}
	svc := newService(b, Options{})
	snap, _ := svc.Start(ctx, "")

	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, snap.SessionID, "first message")
		done <- err
	}()
	<-b.started

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := svc.Send(waitCtx, snap.SessionID, "second message"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected second turn to wait and time out, got %v", err)
	}

	other, _ := svc.Start(ctx, "")
	if _, err := svc.Snapshot(ctx, other.SessionID); err != nil {
		t.Errorf("other sessions must not be blocked: %v", err)
	}

	close(b.release)
	if err := <-done; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	got, _ := svc.Snapshot(ctx, snap.SessionID)
	if len(got.Transcript) != 2 {
		t.Errorf("expected only the first turn recorded, got %d entries", len(got.Transcript))
	}
}

func TestService_RestoresFromStore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	first := newService(&scriptedLLM{}, Options{Store: store})

	snap, _ := first.Start(ctx, "marathi")
	if _, err := first.Send(ctx, snap.SessionID, "I have a cold"); err != nil {
		t.Fatalf("send: %v", err)
	}

	second := newService(&scriptedLLM{}, Options{Store: store})
	got, err := second.Snapshot(ctx, snap.SessionID)
	if err != nil {
		t.Fatalf("snapshot from store: %v", err)
	}
	if got.Language != "marathi" || len(got.Transcript) != 2 {
		t.Errorf("unexpected restored session %+v", got)
	}
}

func TestService_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := newService(&scriptedLLM{}, Options{TTL: time.Hour, Now: clock})

	old, _ := svc.Start(ctx, "")
	now = now.Add(45 * time.Minute)
	fresh, _ := svc.Start(ctx, "")
	now = now.Add(30 * time.Minute)

	if n := svc.Sweep(now); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, err := svc.Snapshot(ctx, old.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected old session evicted, got %v", err)
	}
	if _, err := svc.Snapshot(ctx, fresh.SessionID); err != nil {
		t.Errorf("fresh session evicted: %v", err)
	}
	if svc.Len() != 1 {
		t.Errorf("expected 1 session left, got %d", svc.Len())
	}
}

func TestService_SetLanguage(t *testing.T) {
	ctx := context.Background()
	svc := newService(&scriptedLLM{}, Options{})
	snap, _ := svc.Start(ctx, "")
	svc.Send(ctx, snap.SessionID, "fever")

	got, err := svc.SetLanguage(ctx, snap.SessionID, "kn")
	if err != nil {
		t.Fatalf("set language: %v", err)
	}
	if got.Language != "kannada" || len(got.Transcript) != 1 || got.Transcript[0].Content != got.Greeting {
		t.Errorf("expected reset to kannada greeting, got %+v", got)
	}

	if _, err := svc.SetLanguage(ctx, snap.SessionID, "xx"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestService_TemplateRepeatedAfterDetails(t *testing.T) {
	ctx := context.Background()
	fake := &scriptedLLM{replies: []string{assessmentReply, assessmentReply}}
	svc := newService(fake, Options{})

	snap, _ := svc.Start(ctx, "")
	id := snap.SessionID
	if _, err := svc.Send(ctx, id, "I have had a fever for three days"); err != nil {
		t.Fatalf("send: %v", err)
	}

	turn, err := svc.Send(ctx, id, "My name is Priya Singh, I'm 29, female")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if fake.calls() != 2 {
		t.Fatalf("expected the follow-up to reach the model, got %d calls", fake.calls())
	}
	if !turn.ReportReady || turn.Phase != intake.PhaseReportReady {
		t.Fatalf("a repeated template must keep the report, got %+v", turn)
	}
	if turn.InfoRequest != "" {
		t.Errorf("details must not be requested again, got %q", turn.InfoRequest)
	}

	r, err := svc.Report(ctx, id)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if r.Header.Name != "Priya Singh" || r.Header.Age != "29" {
		t.Errorf("unexpected header %+v", r.Header)
	}
}

func TestService_End(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newService(&scriptedLLM{}, Options{Store: store})

	snap, _ := svc.Start(ctx, "")
	if err := svc.End(ctx, snap.SessionID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if svc.Len() != 0 {
		t.Errorf("expected no sessions in memory, got %d", svc.Len())
	}
	store.mu.Lock()
	_, stored := store.rows[snap.SessionID]
	store.mu.Unlock()
	if stored {
		t.Error("expected stored row deleted")
	}
	if _, err := svc.Snapshot(ctx, snap.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := svc.End(ctx, snap.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on second end, got %v", err)
	}
}

func TestService_RunJanitorRejectsNonPositiveInterval(t *testing.T) {
	svc := newService(&scriptedLLM{}, Options{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.RunJanitor(context.Background(), 0)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor with zero interval should return immediately")
	}
}
