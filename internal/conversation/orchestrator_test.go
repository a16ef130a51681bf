package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"mindscope/internal/models"
)

type mockAnalyzer struct {
	fn func(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)

	mu   sync.Mutex
	reqs []AnalyzeRequest
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	return m.fn(ctx, req)
}

func (m *mockAnalyzer) lastRequest(t *testing.T) AnalyzeRequest {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reqs) == 0 {
		t.Fatalf("no analyze calls recorded")
	}
	return m.reqs[len(m.reqs)-1]
}

type recordStore struct {
	mu      sync.Mutex
	creates int
	updates int
	title   string
	lastID  int64
	lastLen int
	fail    bool
}

func (s *recordStore) Create(_ context.Context, title string, messages []models.Message) (*models.ChatRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store down")
	}
	s.creates++
	s.title = title
	s.lastID = 42
	s.lastLen = len(messages)
	return &models.ChatRecord{ID: 42, Title: title, Messages: messages}, nil
}

func (s *recordStore) Update(_ context.Context, id int64, messages []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.updates++
	s.lastID = id
	s.lastLen = len(messages)
	return nil
}

func okAnalyzer(reply string) *mockAnalyzer {
	return &mockAnalyzer{fn: func(context.Context, AnalyzeRequest) (*AnalyzeResponse, error) {
		return &AnalyzeResponse{LLMResponse: reply, SessionID: "sess-1"}, nil
	}}
}

func TestSendTurnRejectsEmptyInput(t *testing.T) {
	o := NewOrchestrator(okAnalyzer("hi"), nil)
	if _, err := o.SendTurn(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if o.Busy() {
		t.Fatalf("rejected turn must not leave the orchestrator busy")
	}
	if got := len(o.Messages()); got != 0 {
		t.Fatalf("rejected turn must not touch the log, got %d messages", got)
	}
}

func TestSendTurnAcceptsAttachmentsWithoutText(t *testing.T) {
	o := NewOrchestrator(okAnalyzer("got your file"), nil)
	att := []models.Attachment{{Name: "journal.txt", MimeType: "text/plain", Data: []byte("day one")}}
	if _, err := o.SendTurn(context.Background(), "", att); err != nil {
		t.Fatalf("attachment-only turn failed: %v", err)
	}
}

func TestSendTurnAppendsUserMessageBeforeReply(t *testing.T) {
	o := NewOrchestrator(nil, nil)
	a := &mockAnalyzer{fn: func(context.Context, AnalyzeRequest) (*AnalyzeResponse, error) {
		// The user's message must already be visible while the call is
		// outstanding.
		msgs := o.Messages()
		if len(msgs) != 1 || msgs[0].Role != models.RoleUser || msgs[0].Text != "hello" {
			return nil, errors.New("user message not appended before analyze")
		}
		return &AnalyzeResponse{LLMResponse: "hi there"}, nil
	}}
	o.analyzer = a

	if _, err := o.SendTurn(context.Background(), "hello", nil); err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user+ai messages, got %d", len(msgs))
	}
	if msgs[1].Role != models.RoleAI || msgs[1].Text != "hi there" {
		t.Fatalf("unexpected reply message: %+v", msgs[1])
	}
}

func TestSendTurnFailureKeepsUserMessageAndAppendsError(t *testing.T) {
	a := &mockAnalyzer{fn: func(context.Context, AnalyzeRequest) (*AnalyzeResponse, error) {
		return nil, errors.New("boom")
	}}
	o := NewOrchestrator(a, nil)

	if _, err := o.SendTurn(context.Background(), "hello", nil); err == nil {
		t.Fatalf("expected error from failing analyzer")
	}
	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user+error messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser {
		t.Fatalf("user message was rolled back")
	}
	if msgs[1].Role != models.RoleErr || msgs[1].Text != sendErrorText {
		t.Fatalf("unexpected error message: %+v", msgs[1])
	}
	if o.SessionID() != "" {
		t.Fatalf("failed turn must not assign a session id")
	}
	if o.Busy() {
		t.Fatalf("failed turn must release the busy flag")
	}
}

func TestSecondTurnRejectedWhileFirstInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var enteredOnce sync.Once
	a := &mockAnalyzer{fn: func(context.Context, AnalyzeRequest) (*AnalyzeResponse, error) {
		enteredOnce.Do(func() { close(entered) })
		<-release
		return &AnalyzeResponse{LLMResponse: "late"}, nil
	}}
	o := NewOrchestrator(a, nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.SendTurn(context.Background(), "first", nil)
		done <- err
	}()
	<-entered

	if _, err := o.SendTurn(context.Background(), "second", nil); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}
	if !o.Busy() {
		t.Fatalf("orchestrator should report busy mid-turn")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	// Only the first turn's messages made it in.
	msgs := o.Messages()
	if len(msgs) != 2 || msgs[0].Text != "first" {
		t.Fatalf("rejected turn leaked into the log: %+v", msgs)
	}
	if _, err := o.SendTurn(context.Background(), "second", nil); err != nil {
		t.Fatalf("turn after settle should succeed: %v", err)
	}
}

func TestSessionIDAdoptedOnceAndReused(t *testing.T) {
	n := 0
	a := &mockAnalyzer{fn: func(_ context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
		n++
		if n == 1 {
			return &AnalyzeResponse{LLMResponse: "first", SessionID: "sess-1"}, nil
		}
		// A well-behaved server echoes the id back, but even a divergent
		// one must not displace the adopted id.
		return &AnalyzeResponse{LLMResponse: "later", SessionID: "sess-other"}, nil
	}}
	o := NewOrchestrator(a, nil)

	if _, err := o.SendTurn(context.Background(), "one", nil); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if o.SessionID() != "sess-1" {
		t.Fatalf("session id not adopted, got %q", o.SessionID())
	}
	if _, err := o.SendTurn(context.Background(), "two", nil); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if got := a.lastRequest(t).SessionID; got != "sess-1" {
		t.Fatalf("adopted session id not sent, got %q", got)
	}
	if o.SessionID() != "sess-1" {
		t.Fatalf("session id changed mid-conversation to %q", o.SessionID())
	}
}

func TestOrdinaryChatPersistsEveryTurn(t *testing.T) {
	store := &recordStore{}
	o := NewOrchestrator(okAnalyzer("reply"), store)

	if _, err := o.SendTurn(context.Background(), "I had a rough week", nil); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if store.creates != 1 || store.updates != 0 {
		t.Fatalf("first turn should create, got creates=%d updates=%d", store.creates, store.updates)
	}
	if store.title != "I had a rough week" {
		t.Fatalf("title not derived from first message, got %q", store.title)
	}
	if o.ChatID() != 42 {
		t.Fatalf("created record id not adopted, got %d", o.ChatID())
	}

	if _, err := o.SendTurn(context.Background(), "and then it got better", nil); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if store.creates != 1 || store.updates != 1 {
		t.Fatalf("second turn should update, got creates=%d updates=%d", store.creates, store.updates)
	}
	if store.lastID != 42 || store.lastLen != 4 {
		t.Fatalf("update targeted id=%d with %d messages", store.lastID, store.lastLen)
	}
}

func TestPersistFailureDoesNotFailTheTurn(t *testing.T) {
	store := &recordStore{fail: true}
	o := NewOrchestrator(okAnalyzer("reply"), store)

	msg, err := o.SendTurn(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("turn must survive a storage outage: %v", err)
	}
	if msg == nil || msg.Text != "reply" {
		t.Fatalf("reply lost on storage outage: %+v", msg)
	}
	if o.ChatID() != 0 {
		t.Fatalf("failed create must leave chat unsaved")
	}
}

// assessmentAnalyzer scripts the server side of a mental health check.
func assessmentAnalyzer(questions []string, summary string) *mockAnalyzer {
	return &mockAnalyzer{fn: func(_ context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
		// The echoed progress count doubles as the index of the next question.
		asked := 0
		if req.Progress != nil {
			asked = req.Progress.QuestionsAsked
		}
		if asked >= len(questions) {
			return &AnalyzeResponse{
				LLMResponse: summary,
				SessionID:   "assess-1",
				AssessmentProgress: &models.AssessmentProgress{
					QuestionsAsked:     len(questions),
					TotalQuestions:     len(questions),
					AssessmentComplete: true,
					CurrentPhase:       "complete",
				},
			}, nil
		}
		return &AnalyzeResponse{
			LLMResponse: questions[asked],
			SessionID:   "assess-1",
			AssessmentProgress: &models.AssessmentProgress{
				QuestionsAsked: asked + 1,
				TotalQuestions: len(questions),
				CurrentPhase:   "questioning",
			},
		}, nil
	}}
}

func TestStartAssessmentOpensWithWelcomeAndFirstQuestion(t *testing.T) {
	questions := []string{"How have you been sleeping?", "How is your energy?"}
	a := assessmentAnalyzer(questions, "All done.")
	store := &recordStore{}
	o := NewOrchestrator(a, store)

	if _, err := o.StartAssessment(context.Background()); err != nil {
		t.Fatalf("StartAssessment: %v", err)
	}
	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected welcome+question, got %d messages", len(msgs))
	}
	if msgs[0].Role != models.RoleAI || msgs[0].Text != welcomeText {
		t.Fatalf("conversation must open with the welcome message: %+v", msgs[0])
	}
	if msgs[1].Text != questions[0] || !msgs[1].IsAssessmentQuestion {
		t.Fatalf("expected the first question flagged as such: %+v", msgs[1])
	}
	req := a.lastRequest(t)
	if req.Text != startAssessmentPrompt || !req.AssessmentMode {
		t.Fatalf("unexpected opening request: %+v", req)
	}
	if req.Progress == nil || req.Progress.QuestionsAsked != 0 {
		t.Fatalf("opening request must carry fresh progress: %+v", req.Progress)
	}
	if p := o.Progress(); p.QuestionsAsked != 1 {
		t.Fatalf("progress not advanced by server reply: %+v", p)
	}
	if store.creates != 0 {
		t.Fatalf("partial assessment must not be persisted")
	}
}

func TestAssessmentRunsToCompletionAndSavesOnce(t *testing.T) {
	questions := []string{
		"How have you been sleeping?",
		"How is your energy?",
		"How is your appetite?",
		"Are you still enjoying things?",
		"How do you cope with stress?",
	}
	a := assessmentAnalyzer(questions, "Thanks for sharing. Here is your summary.")
	store := &recordStore{}
	o := NewOrchestrator(a, store)

	if _, err := o.StartAssessment(context.Background()); err != nil {
		t.Fatalf("StartAssessment: %v", err)
	}
	answers := []string{"badly", "low", "fine", "less than before", "walks"}
	for i, ans := range answers {
		if store.creates != 0 || store.updates != 0 {
			t.Fatalf("persisted before completion, at answer %d", i)
		}
		msg, err := o.SendTurn(context.Background(), ans, nil)
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if i < len(answers)-1 {
			if !msg.IsAssessmentQuestion {
				t.Fatalf("reply %d should be a question: %+v", i, msg)
			}
			want := i + 2
			if p := o.Progress(); p.QuestionsAsked != want {
				t.Fatalf("after answer %d expected %d questions asked, got %d", i, want, p.QuestionsAsked)
			}
		}
	}

	p := o.Progress()
	if !p.AssessmentComplete || p.QuestionsAsked != 5 || p.CurrentPhase != "complete" {
		t.Fatalf("assessment did not complete: %+v", p)
	}
	final := o.Messages()[len(o.Messages())-1]
	if final.IsAssessmentQuestion {
		t.Fatalf("closing summary must not be flagged as a question")
	}
	if store.creates != 1 || store.updates != 0 {
		t.Fatalf("completed assessment should be saved exactly once, creates=%d updates=%d", store.creates, store.updates)
	}
	// Welcome, 5 questions, closing summary, and the 5 answers.
	if store.lastLen != 12 {
		t.Fatalf("saved history has %d messages, want 12", store.lastLen)
	}
}

func TestAbandonedAssessmentIsNeverSaved(t *testing.T) {
	questions := []string{"q1", "q2", "q3", "q4", "q5"}
	a := assessmentAnalyzer(questions, "done")
	store := &recordStore{}
	o := NewOrchestrator(a, store)

	if _, err := o.StartAssessment(context.Background()); err != nil {
		t.Fatalf("StartAssessment: %v", err)
	}
	if _, err := o.SendTurn(context.Background(), "poorly", nil); err != nil {
		t.Fatalf("answer: %v", err)
	}
	o.NewChat()

	if store.creates != 0 || store.updates != 0 {
		t.Fatalf("abandoned assessment leaked to storage, creates=%d updates=%d", store.creates, store.updates)
	}
	if len(o.Messages()) != 0 {
		t.Fatalf("NewChat must clear the log")
	}
	if o.AssessmentMode() {
		t.Fatalf("NewChat must leave assessment mode")
	}
	if o.SessionID() != "" {
		t.Fatalf("NewChat must drop the session id")
	}
}

func TestStartAssessmentFailureKeepsWelcome(t *testing.T) {
	a := &mockAnalyzer{fn: func(context.Context, AnalyzeRequest) (*AnalyzeResponse, error) {
		return nil, errors.New("service down")
	}}
	o := NewOrchestrator(a, nil)

	if _, err := o.StartAssessment(context.Background()); err == nil {
		t.Fatalf("expected error from failing analyzer")
	}
	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected welcome+error, got %d messages", len(msgs))
	}
	if msgs[0].Text != welcomeText {
		t.Fatalf("welcome message lost on failure")
	}
	if msgs[1].Role != models.RoleErr || msgs[1].Text != startErrorText {
		t.Fatalf("unexpected failure message: %+v", msgs[1])
	}
	if !o.AssessmentMode() {
		t.Fatalf("mode should remain armed so the user can retry")
	}
}

func TestNewAssessmentGetsFreshSession(t *testing.T) {
	session := "run-1"
	a := &mockAnalyzer{fn: func(_ context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
		if req.SessionID != "" {
			return &AnalyzeResponse{LLMResponse: "q", SessionID: req.SessionID}, nil
		}
		return &AnalyzeResponse{LLMResponse: "q", SessionID: session}, nil
	}}
	o := NewOrchestrator(a, nil)

	if _, err := o.StartAssessment(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if o.SessionID() != "run-1" {
		t.Fatalf("first run session = %q", o.SessionID())
	}

	session = "run-2"
	if _, err := o.StartAssessment(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := a.lastRequest(t).SessionID; got != "" {
		t.Fatalf("restart must not reuse the prior session, sent %q", got)
	}
	if o.SessionID() != "run-2" {
		t.Fatalf("second run session = %q", o.SessionID())
	}
	if p := o.Progress(); p.QuestionsAsked > 1 {
		t.Fatalf("restart must reset progress: %+v", p)
	}
}

func TestProgressSentOnlyInAssessmentMode(t *testing.T) {
	a := okAnalyzer("reply")
	o := NewOrchestrator(a, nil)

	if _, err := o.SendTurn(context.Background(), "plain chat", nil); err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	if req := a.lastRequest(t); req.AssessmentMode || req.Progress != nil {
		t.Fatalf("ordinary chat must not carry assessment fields: %+v", req)
	}
}

func TestLoadChatLeavesAssessmentMode(t *testing.T) {
	store := &recordStore{}
	o := NewOrchestrator(okAnalyzer("reply"), store)
	o.EnterAssessmentMode()

	rec := models.ChatRecord{ID: 7, Title: "old chat", Messages: []models.Message{
		{ID: "m1", Role: models.RoleUser, Text: "hi"},
		{ID: "m2", Role: models.RoleAI, Text: "hello"},
	}}
	o.LoadChat(rec)

	if o.AssessmentMode() {
		t.Fatalf("loading a chat must exit assessment mode")
	}
	if o.ChatID() != 7 {
		t.Fatalf("chat id not adopted, got %d", o.ChatID())
	}
	if len(o.Messages()) != 2 {
		t.Fatalf("history not restored")
	}

	// Continuing the loaded chat updates the existing record.
	if _, err := o.SendTurn(context.Background(), "one more thing", nil); err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	if store.creates != 0 || store.updates != 1 || store.lastID != 7 {
		t.Fatalf("loaded chat should update record 7, creates=%d updates=%d id=%d",
			store.creates, store.updates, store.lastID)
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := deriveTitle(nil); got != defaultChatTitle {
		t.Fatalf("empty history title = %q", got)
	}
	if got := deriveTitle([]models.Message{{Text: "   "}}); got != defaultChatTitle {
		t.Fatalf("blank first message title = %q", got)
	}
	long := strings.Repeat("a", 80)
	if got := deriveTitle([]models.Message{{Text: long}}); len([]rune(got)) != maxTitleLen {
		t.Fatalf("long title not truncated, len=%d", len([]rune(got)))
	}
	if got := deriveTitle([]models.Message{{Text: "short"}}); got != "short" {
		t.Fatalf("title = %q", got)
	}
}

func TestSentimentPassthrough(t *testing.T) {
	raw := []byte(`{"label":"negative","score":-0.62}`)
	a := &mockAnalyzer{fn: func(context.Context, AnalyzeRequest) (*AnalyzeResponse, error) {
		return &AnalyzeResponse{LLMResponse: "I hear you", CombinedSentiment: raw}, nil
	}}
	o := NewOrchestrator(a, nil)

	msg, err := o.SendTurn(context.Background(), "rough day", nil)
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	if string(msg.Sentiment) != string(raw) {
		t.Fatalf("sentiment not carried verbatim: %s", msg.Sentiment)
	}
}

func TestMessagesSnapshotIsIsolated(t *testing.T) {
	o := NewOrchestrator(okAnalyzer("reply"), nil)
	if _, err := o.SendTurn(context.Background(), "hello", nil); err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	snap := o.Messages()
	snap[0].Text = "tampered"
	if o.Messages()[0].Text != "hello" {
		t.Fatalf("snapshot mutation leaked into the log")
	}
}
