package analysis

import "context"

// Responder produces the conversational reply for one turn. history carries
// the session's prior exchanges so the model keeps context across turns.
type Responder interface {
	Reply(ctx context.Context, history []Exchange, prompt string) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, history []Exchange, prompt string) (string, error)

func (f ResponderFunc) Reply(ctx context.Context, history []Exchange, prompt string) (string, error) {
	return f(ctx, history, prompt)
}
