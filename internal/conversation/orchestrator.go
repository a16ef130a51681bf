package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mindscope/internal/models"
)

var (
	// ErrEmptyInput is returned when a turn carries neither text nor files.
	ErrEmptyInput = errors.New("nothing to send")
	// ErrTurnInFlight is returned when a turn is submitted while a prior
	// one is still awaiting the analysis service.
	ErrTurnInFlight = errors.New("a turn is already in flight")
)

const (
	startAssessmentPrompt = "start assessment"

	welcomeText = "Welcome to the Mental Health Check! I'm going to ask you 5 questions " +
		"to better understand how you've been feeling. Let's begin..."
	sendErrorText  = "Sorry, I encountered an error. Please try again."
	startErrorText = "Sorry, I encountered an error starting the assessment. Please try again."

	defaultChatTitle = "New Chat"
	maxTitleLen      = 50
)

// AnalyzeRequest is the outbound payload for one conversation turn.
type AnalyzeRequest struct {
	Text           string
	Attachments    []models.Attachment
	AssessmentMode bool
	// Progress is the current assessment snapshot, attached only while
	// assessment mode is active.
	Progress *models.AssessmentProgress
	// SessionID is attached in both modes once the server has assigned one.
	SessionID string
}

// AnalyzeResponse is the analysis service's reply to one turn.
type AnalyzeResponse struct {
	LLMResponse        string                     `json:"llm_response"`
	SessionID          string                     `json:"session_id,omitempty"`
	CombinedSentiment  json.RawMessage            `json:"combined_sentiment,omitempty"`
	AssessmentProgress *models.AssessmentProgress `json:"assessment_progress,omitempty"`
}

// Analyzer is the external analysis collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)
}

// ChatStore is the external persistence collaborator. Create is called once
// per conversation; Update thereafter. Last write wins, no conflict handling.
type ChatStore interface {
	Create(ctx context.Context, title string, messages []models.Message) (*models.ChatRecord, error)
	Update(ctx context.Context, id int64, messages []models.Message) error
}

// Orchestrator coordinates one conversation: it owns the message log and the
// assessment tracker, turns user input into analyze calls, folds replies back
// into local state, and decides when the history is persisted.
//
// At most one turn may be in flight at a time; the busy flag rejects a second
// SendTurn until the pending one settles, which also guarantees replies are
// applied in request order.
type Orchestrator struct {
	analyzer Analyzer
	store    ChatStore

	busy atomic.Bool

	mu             sync.Mutex
	log            Log
	tracker        Tracker
	sessionID      string
	chatID         int64
	assessmentMode bool
}

// NewOrchestrator builds an orchestrator for a fresh conversation.
func NewOrchestrator(analyzer Analyzer, store ChatStore) *Orchestrator {
	o := &Orchestrator{analyzer: analyzer, store: store}
	o.tracker.Reset(models.TotalAssessmentQuestions)
	return o
}

// SendTurn submits user input. The user message is appended to the log
// immediately and never rolled back; the analysis reply (or a single
// error-role message on failure) is appended when the call settles.
func (o *Orchestrator) SendTurn(ctx context.Context, text string, attachments []models.Attachment) (*models.Message, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil, ErrEmptyInput
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}
	defer o.busy.Store(false)

	o.mu.Lock()
	o.log.Append(models.Message{
		ID:          uuid.NewString(),
		Role:        models.RoleUser,
		Text:        text,
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	})
	req := AnalyzeRequest{
		Text:           text,
		Attachments:    attachments,
		AssessmentMode: o.assessmentMode,
		SessionID:      o.sessionID,
	}
	if o.assessmentMode {
		progress := o.tracker.Progress()
		req.Progress = &progress
	}
	o.mu.Unlock()

	return o.completeTurn(ctx, req, sendErrorText)
}

// StartAssessment begins a fresh mental health check: the log and session
// are discarded, a locally generated welcome message opens the conversation,
// and a single sentinel turn is sent to obtain the first question. A new
// assessment never reuses a prior session id.
func (o *Orchestrator) StartAssessment(ctx context.Context) (*models.Message, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}
	defer o.busy.Store(false)

	o.mu.Lock()
	o.log.Clear()
	o.chatID = 0
	o.sessionID = ""
	o.assessmentMode = true
	o.tracker.Reset(models.TotalAssessmentQuestions)
	o.log.Append(models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAI,
		Text:      welcomeText,
		CreatedAt: time.Now().UTC(),
	})
	progress := o.tracker.Progress()
	req := AnalyzeRequest{
		Text:           startAssessmentPrompt,
		AssessmentMode: true,
		Progress:       &progress,
	}
	o.mu.Unlock()

	return o.completeTurn(ctx, req, startErrorText)
}

// completeTurn runs the analyze call and applies its outcome: exactly one
// follow-up message is appended (ai on success, error on failure), and on
// success progress and session id are reconciled and the history is
// persisted when eligible.
func (o *Orchestrator) completeTurn(ctx context.Context, req AnalyzeRequest, failureText string) (*models.Message, error) {
	resp, err := o.analyzer.Analyze(ctx, req)
	if err != nil {
		o.mu.Lock()
		o.log.Append(models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleErr,
			Text:      failureText,
			CreatedAt: time.Now().UTC(),
		})
		o.mu.Unlock()
		return nil, fmt.Errorf("analyze turn: %w", err)
	}

	o.mu.Lock()
	if o.sessionID == "" && resp.SessionID != "" {
		o.sessionID = resp.SessionID
	}
	o.tracker.ApplyServerProgress(resp.AssessmentProgress)

	aiMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAI,
		Text:      resp.LLMResponse,
		Sentiment: resp.CombinedSentiment,
		IsAssessmentQuestion: resp.AssessmentProgress != nil &&
			!resp.AssessmentProgress.AssessmentComplete,
		CreatedAt: time.Now().UTC(),
	}
	o.log.Append(aiMsg)

	persist := !o.assessmentMode || o.tracker.Progress().AssessmentComplete
	snapshot := o.log.Messages()
	chatID := o.chatID
	o.mu.Unlock()

	if persist && o.store != nil {
		o.persist(ctx, chatID, snapshot)
	}
	return &aiMsg, nil
}

// persist is a best-effort side effect: failures are logged and the
// conversation carries on in memory, unsynced.
func (o *Orchestrator) persist(ctx context.Context, chatID int64, messages []models.Message) {
	if chatID == 0 {
		rec, err := o.store.Create(ctx, deriveTitle(messages), messages)
		if err != nil {
			log.Printf("save chat failed: %v", err)
			return
		}
		o.mu.Lock()
		if o.chatID == 0 {
			o.chatID = rec.ID
		}
		o.mu.Unlock()
		return
	}
	if err := o.store.Update(ctx, chatID, messages); err != nil {
		log.Printf("update chat %d failed: %v", chatID, err)
	}
}

// NewChat discards the conversation and returns to ordinary chat mode.
func (o *Orchestrator) NewChat() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.log.Clear()
	o.chatID = 0
	o.sessionID = ""
	o.assessmentMode = false
	o.tracker.Reset(models.TotalAssessmentQuestions)
	o.tracker.MarkComplete()
}

// EnterAssessmentMode clears the conversation and arms assessment mode
// without contacting the server; StartAssessment issues the opening turn.
func (o *Orchestrator) EnterAssessmentMode() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.log.Clear()
	o.chatID = 0
	o.sessionID = ""
	o.assessmentMode = true
	o.tracker.Reset(models.TotalAssessmentQuestions)
}

// LoadChat replaces the conversation with a persisted record. Loading
// always leaves assessment mode and drops any analysis session binding.
func (o *Orchestrator) LoadChat(rec models.ChatRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.log.ReplaceAll(rec.Messages)
	o.chatID = rec.ID
	o.sessionID = ""
	o.assessmentMode = false
	o.tracker.Reset(models.TotalAssessmentQuestions)
}

// Messages returns a snapshot of the conversation history.
func (o *Orchestrator) Messages() []models.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.log.Messages()
}

// Progress returns the current assessment snapshot.
func (o *Orchestrator) Progress() models.AssessmentProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tracker.Progress()
}

// SessionID returns the analysis session id, empty until assigned.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// ChatID returns the persisted record id, zero until the first save.
func (o *Orchestrator) ChatID() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.chatID
}

// AssessmentMode reports whether assessment semantics are active.
func (o *Orchestrator) AssessmentMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.assessmentMode
}

// Busy reports whether a turn is awaiting the analysis service.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// deriveTitle names a saved chat after its first message.
func deriveTitle(messages []models.Message) string {
	if len(messages) == 0 {
		return defaultChatTitle
	}
	text := strings.TrimSpace(messages[0].Text)
	if text == "" {
		return defaultChatTitle
	}
	if runes := []rune(text); len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen])
	}
	return text
}
