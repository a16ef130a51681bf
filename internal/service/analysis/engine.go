package analysis

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"mindscope/internal/analysis/sentiment"
	"mindscope/internal/models"
)

// Input is one analyze turn as received from a client.
type Input struct {
	Text           string
	Attachments    []models.Attachment
	AssessmentMode bool
	SessionID      string
}

// Result is the analyze reply. CombinedSentiment and AssessmentProgress are
// echoed to the client which renders them without interpretation.
type Result struct {
	SessionID          string                    `json:"session_id"`
	LLMResponse        string                    `json:"llm_response"`
	CombinedSentiment  sentiment.Result          `json:"combined_sentiment"`
	AssessmentProgress models.AssessmentProgress `json:"assessment_progress"`
}

// Engine coordinates one analyze turn: session resolution, sentiment
// scoring, assessment sequencing, and reply generation. The engine is the
// sole authority over assessment progress; clients only echo what it
// reports.
type Engine struct {
	sessions  *SessionStore
	responder Responder
	extractor *Extractor
}

// NewEngine builds an engine. responder may be nil, in which case every
// turn uses the deterministic fallback replies; extractor may be nil to
// skip attachment content analysis.
func NewEngine(sessions *SessionStore, responder Responder, extractor *Extractor) *Engine {
	return &Engine{sessions: sessions, responder: responder, extractor: extractor}
}

// Analyze runs one turn. A missing session id mints a new session; an
// unknown or expired one transparently restarts it.
func (e *Engine) Analyze(ctx context.Context, in Input) (*Result, error) {
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	state, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		log.Printf("load session %s: %v", sessionID, err)
		state = nil
	}
	if state == nil {
		state = newSessionState(in.AssessmentMode)
	} else if state.IsAssessmentMode != in.AssessmentMode {
		// A mode flip mid-session restarts the session's assessment
		// bookkeeping; conversation memory survives.
		history := state.History
		state = newSessionState(in.AssessmentMode)
		state.History = history
	}

	combined, sources := e.scoreSentiment(ctx, in)
	input := strings.TrimSpace(in.Text)

	var prompt, fallback string
	switch {
	case !state.IsAssessmentMode:
		prompt = regularChatPrompt(input, combined, sources)
		fallback = regularFallback

	case state.FirstInteraction:
		// The opening turn carries a sentinel, not an answer; it asks
		// question one and nothing is recorded.
		state.QuestionsAsked = 1
		state.CurrentQuestionIndex = 0
		prompt = firstQuestionPrompt(input, combined, sources)
		fallback = assessmentFallback(0)

	case state.AssessmentComplete:
		prompt = regularChatPrompt(input, combined, sources)
		fallback = regularFallback

	default:
		if input != "" {
			state.UserResponses = append(state.UserResponses, input)
		}
		answered := len(state.UserResponses)
		if answered >= TotalQuestions {
			state.AssessmentComplete = true
			state.Phase = "complete"
			prompt = summaryPrompt(input, combined, sources, answered)
			fallback = regularFallback
		} else {
			state.CurrentQuestionIndex = answered
			state.QuestionsAsked = answered + 1
			prompt = nextQuestionPrompt(input, combined, sources, answered)
			fallback = assessmentFallback(answered)
		}
	}
	state.FirstInteraction = false

	reply := e.generate(ctx, state.History, prompt, fallback)

	state.History = append(state.History,
		Exchange{Role: "user", Content: input},
		Exchange{Role: "assistant", Content: reply},
	)
	if err := e.sessions.Put(ctx, sessionID, state); err != nil {
		log.Printf("store session %s: %v", sessionID, err)
	}

	return &Result{
		SessionID:         sessionID,
		LLMResponse:       reply,
		CombinedSentiment: combined,
		AssessmentProgress: models.AssessmentProgress{
			QuestionsAsked:     state.QuestionsAsked,
			TotalQuestions:     TotalQuestions,
			AssessmentComplete: state.AssessmentComplete,
			CurrentPhase:       state.Phase,
		},
	}, nil
}

// scoreSentiment reads the turn's text and attachments and combines their
// sentiment. Attachment failures only cost their signal.
func (e *Engine) scoreSentiment(ctx context.Context, in Input) (sentiment.Result, []string) {
	var results []sentiment.Result
	var sources []string

	if strings.TrimSpace(in.Text) != "" {
		sources = append(sources, "text")
		results = append(results, sentiment.Analyze(in.Text))
	}
	if len(in.Attachments) > 0 {
		sources = append(sources, "files")
		if e.extractor != nil {
			for _, att := range in.Attachments {
				text, err := e.extractor.ExtractText(ctx, att)
				if err != nil {
					log.Printf("extract %s: %v", att.Name, err)
					continue
				}
				if text != "" {
					results = append(results, sentiment.Analyze(text))
				}
			}
		}
	}
	if len(sources) == 0 {
		sources = []string{"none"}
	}
	return sentiment.Combine(results...), sources
}

func (e *Engine) generate(ctx context.Context, history []Exchange, prompt, fallback string) string {
	if e.responder == nil {
		return fallback
	}
	reply, err := e.responder.Reply(ctx, history, prompt)
	if err != nil {
		log.Printf("responder: %v", err)
		return fallback
	}
	return reply
}
