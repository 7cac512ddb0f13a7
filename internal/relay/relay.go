package relay

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"ollamaweb/internal/models"
)

// Streamer opens a streaming chat call against the upstream.
type Streamer interface {
	OpenStream(ctx context.Context, model string, messages []models.ChatMessage, systemPrompt string) (io.ReadCloser, error)
}

// HistoryWriter records the exchange around a stream. Begin runs
// before the first upstream byte so the conversation id can be handed
// to the client; Finish fills the assistant placeholder afterwards.
type HistoryWriter interface {
	Begin(ctx context.Context, userID, conversationID int64, model, prompt string) (int64, error)
	Finish(ctx context.Context, userID, conversationID int64, content string, complete bool) error
}

// Relay pumps one upstream chat stream into an event channel and
// persists the result, complete or not.
type Relay struct {
	history  HistoryWriter
	maxBytes int64
	logger   *zap.Logger
}

func New(history HistoryWriter, maxBytes int64, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{history: history, maxBytes: maxBytes, logger: logger}
}

// StartRequest describes one streaming turn. The upstream is bound
// per request because each user may point at a different server.
// ConversationID zero means start a new conversation.
type StartRequest struct {
	Upstream       Streamer
	UserID         int64
	ConversationID int64
	Model          string
	History        []models.ChatMessage
	Prompt         string
	SystemPrompt   string
}

// Session is a running stream. ConversationID is valid as soon as
// Start returns; Events closes after the terminal event.
type Session struct {
	ConversationID int64
	Events         <-chan models.StreamEvent
}

// Start records the user turn with an empty assistant placeholder,
// opens the upstream stream, and launches the pump goroutine. If the
// upstream cannot be reached the placeholder stays persisted with
// complete=false and the error is returned before any event is sent.
func (r *Relay) Start(ctx context.Context, req StartRequest) (*Session, error) {
	convID, err := r.history.Begin(ctx, req.UserID, req.ConversationID, req.Model, req.Prompt)
	if err != nil {
		return nil, err
	}

	messages := append(append([]models.ChatMessage{}, req.History...),
		models.ChatMessage{Role: models.RoleUser, Content: req.Prompt})

	body, err := req.Upstream.OpenStream(ctx, req.Model, messages, req.SystemPrompt)
	if err != nil {
		r.persist(ctx, req.UserID, convID, "", false)
		return nil, err
	}

	events := make(chan models.StreamEvent)
	go r.pump(ctx, req.UserID, convID, body, events)

	return &Session{ConversationID: convID, Events: events}, nil
}

func (r *Relay) pump(ctx context.Context, userID, convID int64, body io.ReadCloser, events chan<- models.StreamEvent) {
	defer close(events)
	defer body.Close()

	dec := NewDecoder(body, r.maxBytes)
	for {
		delta, done, err := dec.Next()
		if err != nil {
			r.logger.Warn("stream aborted",
				zap.Int64("conversation_id", convID),
				zap.Int("partial_bytes", len(dec.Text())),
				zap.Error(err))
			r.persist(ctx, userID, convID, dec.Text(), false)
			r.send(ctx, events, models.StreamEvent{Error: err.Error()})
			return
		}

		if delta != "" {
			if !r.send(ctx, events, models.StreamEvent{Content: delta}) {
				// Client went away; keep what arrived so far.
				r.persist(ctx, userID, convID, dec.Text(), false)
				return
			}
		}
		if done {
			if n := dec.Skipped(); n > 0 {
				r.logger.Warn("dropped malformed frames",
					zap.Int64("conversation_id", convID),
					zap.Int("count", n))
			}
			r.persist(ctx, userID, convID, dec.Text(), true)
			r.send(ctx, events, models.StreamEvent{Done: true})
			return
		}
	}
}

func (r *Relay) send(ctx context.Context, events chan<- models.StreamEvent, ev models.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// persist writes the assistant text outside the request context so a
// canceled stream still leaves its partial transcript behind.
func (r *Relay) persist(ctx context.Context, userID, convID int64, content string, complete bool) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.history.Finish(pctx, userID, convID, content, complete); err != nil {
		r.logger.Error("persist assistant reply",
			zap.Int64("conversation_id", convID),
			zap.Bool("complete", complete),
			zap.Error(err))
	}
}
