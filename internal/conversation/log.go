package conversation

import "mindscope/internal/models"

// Log is the ordered history of one conversation. It is append-only:
// individual entries are never mutated or removed, and only Clear and
// ReplaceAll (loading a persisted chat) discard the current contents.
type Log struct {
	messages []models.Message
}

// Append adds a message and returns the new length.
func (l *Log) Append(msg models.Message) int {
	l.messages = append(l.messages, msg)
	return len(l.messages)
}

// ReplaceAll swaps the log for the messages of a persisted chat record.
func (l *Log) ReplaceAll(messages []models.Message) {
	l.messages = make([]models.Message, len(messages))
	copy(l.messages, messages)
}

// Clear empties the log for a new chat or a new assessment.
func (l *Log) Clear() {
	l.messages = nil
}

// Messages returns a copy of the current history.
func (l *Log) Messages() []models.Message {
	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len reports the number of messages.
func (l *Log) Len() int {
	return len(l.messages)
}
