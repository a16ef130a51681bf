package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"mindscope/internal/redis"
)

// SessionTTL bounds how long an idle analysis session survives. Sessions
// are correlation state only; losing one restarts the check, it never loses
// persisted chats.
const SessionTTL = 30 * time.Minute

const sessionKeyPrefix = "analysis:session:"

// Exchange is one prompt/response pair kept as conversation memory for the
// language model.
type Exchange struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionState is the server-side record for one analysis session.
type SessionState struct {
	IsAssessmentMode     bool       `json:"is_assessment_mode"`
	Phase                string     `json:"phase"`
	QuestionsAsked       int        `json:"questions_asked"`
	UserResponses        []string   `json:"user_responses"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	AssessmentComplete   bool       `json:"assessment_complete"`
	FirstInteraction     bool       `json:"first_interaction"`
	History              []Exchange `json:"history"`
}

func newSessionState(assessmentMode bool) *SessionState {
	state := &SessionState{
		IsAssessmentMode: assessmentMode,
		FirstInteraction: true,
	}
	if assessmentMode {
		state.Phase = "initial"
	} else {
		state.Phase = "none"
		state.AssessmentComplete = true
	}
	return state
}

// SessionStore keeps session state in redis with an in-memory fallback.
// When redis is unavailable the process still works; sessions then live only
// as long as the process.
type SessionStore struct {
	cache *redis.Client

	mu     sync.Mutex
	local  map[string]*localEntry
	nowFn  func() time.Time
}

type localEntry struct {
	state     *SessionState
	expiresAt time.Time
}

// NewSessionStore builds a store backed by cache; cache may be nil.
func NewSessionStore(cache *redis.Client) *SessionStore {
	return &SessionStore{
		cache: cache,
		local: make(map[string]*localEntry),
		nowFn: time.Now,
	}
}

// Get returns the session state, or nil when the session is unknown or
// expired.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*SessionState, error) {
	if sessionID == "" {
		return nil, errors.New("session id required")
	}
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, sessionKeyPrefix+sessionID)
		switch {
		case err == nil:
			var state SessionState
			if err := json.Unmarshal([]byte(raw), &state); err != nil {
				return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
			}
			return &state, nil
		case errors.Is(err, redis.ErrCacheMiss):
			return nil, nil
		default:
			log.Printf("session cache get %s: %v, using local store", sessionID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.local[sessionID]
	if !ok {
		return nil, nil
	}
	if s.nowFn().After(entry.expiresAt) {
		delete(s.local, sessionID)
		return nil, nil
	}
	return entry.state, nil
}

// Put writes the session state and refreshes its TTL.
func (s *SessionStore) Put(ctx context.Context, sessionID string, state *SessionState) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	if state == nil {
		return errors.New("state required")
	}
	if s.cache != nil {
		encoded, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", sessionID, err)
		}
		if err := s.cache.Set(ctx, sessionKeyPrefix+sessionID, string(encoded), SessionTTL); err == nil {
			return nil
		} else {
			log.Printf("session cache put %s: %v, using local store", sessionID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[sessionID] = &localEntry{state: state, expiresAt: s.nowFn().Add(SessionTTL)}
	return nil
}

// Delete discards a session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, sessionKeyPrefix+sessionID); err != nil {
			log.Printf("session cache del %s: %v", sessionID, err)
		}
	}
	s.mu.Lock()
	delete(s.local, sessionID)
	s.mu.Unlock()
	return nil
}
