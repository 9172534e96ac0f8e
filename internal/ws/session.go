package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/conversa/conversa-backend/internal/errdefs"
	"github.com/conversa/conversa-backend/internal/providers"
	"github.com/conversa/conversa-backend/internal/services"
)

// State is the streaming session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateAwaiting
	StateStreaming
)

// StartRequest is a client's start message.
type StartRequest struct {
	Message        string
	ConversationID string
	Options        services.ModelOptions
}

// stream is one in-flight provider stream. silent suppresses terminal
// events once the connection is gone.
type stream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	silent  bool
	done    chan struct{}
}

// Session drives one WebSocket connection's streaming completions. One
// connection owns exactly one Session, destroyed on disconnect; only one
// stream is active at a time. A start received while streaming implicitly
// stops the previous stream before starting the new one.
//
// A stopped stream's partial content is discarded: no assistant message is
// persisted and no usage is recorded.
type Session struct {
	gateway   services.Gateway
	transport Transport
	userID    uuid.UUID
	logger    logrus.FieldLogger

	mu      sync.Mutex
	state   State
	current *stream
}

// NewSession creates a session for one authenticated connection.
func NewSession(gateway services.Gateway, transport Transport, userID uuid.UUID, logger *logrus.Logger) *Session {
	return &Session{
		gateway:   gateway,
		transport: transport,
		userID:    userID,
		logger:    logger.WithField("user_id", userID),
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start handles a client start message: Idle -> Awaiting -> Streaming. The
// conversation id is communicated to the caller before any streaming begins
// so the caller can resume if the connection drops.
func (s *Session) Start(ctx context.Context, req StartRequest) {
	s.mu.Lock()
	prev := s.current
	if prev != nil {
		// Implicit stop-then-start: cancel the previous stream and wait
		// for its terminal event before opening the next one.
		prev.stopped = true
		prev.cancel()
		s.current = nil
	}
	s.state = StateAwaiting
	s.mu.Unlock()

	if prev != nil {
		<-prev.done
	}

	turn, err := s.gateway.Prepare(ctx, services.TurnRequest{
		UserID:         s.userID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Options:        req.Options,
	})
	if err != nil {
		s.fail(err)
		return
	}

	if turn.Created {
		s.send(Event{Type: EventConversationCreated, ConversationID: turn.Conversation.ID})
	}
	s.send(Event{
		Type:      EventUserMessageSaved,
		MessageID: turn.UserMessage.ID,
		Content:   turn.UserMessage.Content,
	})

	chunks, streamCtx, cancel, err := s.gateway.Stream(ctx, turn)
	if err != nil {
		s.fail(err)
		return
	}

	st := &stream{ctx: streamCtx, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.state = StateStreaming
	s.current = st
	s.mu.Unlock()

	go s.consume(ctx, st, turn, chunks)
}

// Stop handles a client stop message. The provider stream is cancelled, the
// accumulated partial content is discarded, and a stopped event is emitted.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}
	s.current.stopped = true
	s.current.cancel()
}

// Close cancels any in-flight stream without emitting events. Called on
// disconnect.
func (s *Session) Close() {
	s.mu.Lock()
	st := s.current
	if st != nil {
		st.stopped = true
		st.silent = true
		st.cancel()
	}
	s.mu.Unlock()

	if st != nil {
		<-st.done
	}
}

// consume forwards provider chunks to the transport and finalizes the turn.
// Each delta is surfaced immediately, in order.
func (s *Session) consume(ctx context.Context, st *stream, turn *services.Turn, chunks <-chan providers.StreamChunk) {
	defer st.cancel()
	defer close(st.done)

	var content []byte
	model := turn.Request.Model
	finished := false

	for chunk := range chunks {
		if chunk.Error != "" {
			// A stop cancels the stream context; the provider may report
			// that cancellation as an error chunk before it shuts down.
			// An explicit stop always terminates with a stopped event.
			s.mu.Lock()
			stopped, silent := st.stopped, st.silent
			s.mu.Unlock()

			if stopped {
				if !silent {
					s.send(Event{Type: EventStopped})
				}
				s.finish(st)
				return
			}
			s.failStream(st, chunk.Error)
			return
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Delta != "" {
			content = append(content, chunk.Delta...)
			if err := s.send(Event{Type: EventChunk, Content: chunk.Delta, IsComplete: boolPtr(false)}); err != nil {
				// Transport gone: abort upstream, persist nothing.
				s.finish(st)
				return
			}
		}
		if chunk.FinishReason != "" {
			finished = true
			s.complete(ctx, st, turn, string(content), model, chunk.FinishReason)
			break
		}
	}

	if !finished {
		// Channel closed without a finish reason: either a stop/disconnect
		// cancelled the stream, or the provider timed out.
		s.mu.Lock()
		stopped, silent := st.stopped, st.silent
		s.mu.Unlock()

		switch {
		case stopped:
			if !silent {
				s.send(Event{Type: EventStopped})
			}
			s.finish(st)
		case errors.Is(st.ctx.Err(), context.DeadlineExceeded):
			s.failStream(st, errdefs.Timeout("stream").Error())
		default:
			s.failStream(st, "stream ended unexpectedly")
		}
	}
}

// complete runs Streaming -> Completed: the accumulated content is appended
// as one assistant message and usage is incremented exactly once.
func (s *Session) complete(ctx context.Context, st *stream, turn *services.Turn, content, model, finishReason string) {
	message, accounted, err := s.gateway.Finish(ctx, turn, content, 0, model)
	if err != nil {
		s.failStream(st, err.Error())
		return
	}

	s.send(Event{
		Type:           EventEnd,
		MessageID:      message.ID,
		ConversationID: turn.Conversation.ID,
		TotalTokens:    accounted,
		Model:          model,
		FinishReason:   finishReason,
	})
	s.finish(st)
}

// fail surfaces an error before any stream was opened and returns to Idle.
func (s *Session) fail(err error) {
	s.logger.WithError(err).Warn("session start failed")
	s.send(Event{Type: EventError, Message: err.Error()})

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}

// failStream surfaces a mid-stream error and returns to Idle. No partial
// message is persisted; the connection stays open for a new start.
func (s *Session) failStream(st *stream, reason string) {
	s.logger.WithField("reason", reason).Warn("stream errored")
	s.send(Event{Type: EventError, Message: reason})
	s.finish(st)
}

// finish returns the session to Idle after a terminal state.
func (s *Session) finish(st *stream) {
	s.mu.Lock()
	if s.current == st {
		s.current = nil
		s.state = StateIdle
	}
	s.mu.Unlock()
}

func (s *Session) send(event Event) error {
	return s.transport.Send(event)
}
