package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
	"github.com/wrenlabs/concierge/backend/internal/model/conversation"
	"github.com/wrenlabs/concierge/backend/internal/service/intent"
	"github.com/wrenlabs/concierge/backend/internal/service/session"
)

// Turn lifecycle states, logged with session and turn IDs.
const (
	stateReceived      = "received"
	stateContextLoaded = "context_loaded"
	stateRouted        = "routed"
	stateProcessing    = "processing"
	stateStreaming     = "streaming"
	stateCommitted     = "committed"
	stateFailed        = "failed"
)

const commitTimeout = 5 * time.Second

const genericFailureText = "Something went wrong while handling your request. Please try again."

var (
	ErrMissingSession = errors.New("session id required")
	ErrEmptyMessage   = errors.New("message must not be empty")
)

// Router decides which handler serves a query.
type Router interface {
	Classify(ctx context.Context, query string, tc intent.Context) intent.Decision
}

// Service runs the per-turn state machine: load session context, route the
// query to a handler, stream the reply, commit the exchange. Turns for one
// session run strictly in arrival order; distinct sessions run concurrently.
type Service struct {
	sessions     *session.Manager
	classifier   Router
	registry     *capability.Registry
	historyLimit int
}

func New(sessions *session.Manager, classifier Router, registry *capability.Registry, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Service{
		sessions:     sessions,
		classifier:   classifier,
		registry:     registry,
		historyLimit: historyLimit,
	}
}

// SubmitTurn validates the input and starts the turn on its own goroutine.
// The returned handle streams the reply; cancelling the caller's ctx or the
// handle abandons the turn.
func (s *Service) SubmitTurn(ctx context.Context, sessionID, message string) (*TurnHandle, error) {
	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}

	turnCtx, cancel := context.WithCancel(ctx)
	h := newTurnHandle(sessionID, uuid.NewString(), cancel, capability.NewStream(turnCtx))
	go s.run(turnCtx, h, message)
	return h, nil
}

// History returns the stored turn list without taking the session lock.
func (s *Service) History(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	sess, err := s.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Turns, nil
}

// Reset drops the stored session state.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	return s.sessions.Reset(ctx, sessionID)
}

// Capabilities lists the registered handlers in registration order.
func (s *Service) Capabilities() []capability.Descriptor {
	return s.registry.Descriptors()
}

func (s *Service) run(ctx context.Context, h *TurnHandle, message string) {
	res := TurnResult{SessionID: h.sessionID}
	defer func() { h.complete(res) }()

	lg := log.With().Str("session", h.sessionID).Str("turn", h.turnID).Logger()
	lg.Info().Str("state", stateReceived).Msg("turn accepted")

	if err := s.sessions.Acquire(ctx, h.sessionID); err != nil {
		res.Cancelled = true
		lg.Warn().Err(err).Msg("turn abandoned while queued")
		return
	}
	defer s.sessions.Release(h.sessionID)

	sess, err := s.sessions.Load(ctx, h.sessionID)
	if err != nil {
		res.Cancelled = true
		lg.Warn().Err(err).Msg("turn abandoned during context load")
		return
	}
	lg.Info().Str("state", stateContextLoaded).Int("turns", len(sess.Turns)).Msg("session context loaded")

	decision := s.classifier.Classify(ctx, message, intent.Context{
		LastHandler: sess.LastHandler,
		RecentTurns: sess.RecentTurns(s.historyLimit),
	})
	h.publishDecision(decision)
	res.Handler = decision.Handler
	lg.Info().
		Str("state", stateRouted).
		Str("handler", decision.Handler).
		Float64("confidence", decision.Confidence).
		Str("source", string(decision.Source)).
		Bool("continuation", decision.Continuation).
		Msg("turn routed")

	handler, ok := s.registry.Get(decision.Handler)
	if decision.Handler == intent.Unknown || !ok {
		s.streamClarification(h, &res, lg, sess, message)
		return
	}

	lg.Info().Str("state", stateProcessing).Str("handler", decision.Handler).Msg("dispatching")
	reply, err := handler.Process(ctx, message, capability.Context{
		SessionID:   h.sessionID,
		RecentTurns: sess.RecentTurns(s.historyLimit),
		Slots:       sess.HandlerSlots(decision.Handler),
	})
	if err != nil {
		s.failTurn(h, &res, lg, sess, message, decision.Handler, "", err)
		return
	}

	lg.Debug().Str("state", stateStreaming).Msg("streaming reply")
	var text strings.Builder
	for {
		chunk, rerr := reply.Stream.Recv(ctx)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				reply.Stream.Cancel()
				s.cancelTurn(&res, lg, sess, message, decision.Handler, text.String())
				return
			}
			s.failTurn(h, &res, lg, sess, message, decision.Handler, text.String(), rerr)
			return
		}
		text.WriteString(chunk)
		if perr := h.out.Push(chunk); perr != nil {
			reply.Stream.Cancel()
			s.cancelTurn(&res, lg, sess, message, decision.Handler, text.String())
			return
		}
	}

	final := text.String()
	s.commitTurn(lg, sess, &res, message, commitSpec{
		handler:          decision.Handler,
		text:             final,
		slots:            reply.Slots,
		updateLast:       true,
		requiresFollowup: asksFollowup(final),
	})
}

// streamClarification answers an unroutable query with a capability summary.
// The session's last-active handler is left untouched.
func (s *Service) streamClarification(h *TurnHandle, res *TurnResult, lg zerolog.Logger, sess *conversation.Session, message string) {
	lg.Debug().Str("state", stateStreaming).Msg("streaming clarification")

	var text strings.Builder
	for _, chunk := range s.clarificationChunks() {
		text.WriteString(chunk)
		if err := h.out.Push(chunk); err != nil {
			s.cancelTurn(res, lg, sess, message, "", text.String())
			return
		}
	}

	s.commitTurn(lg, sess, res, message, commitSpec{
		text:             text.String(),
		requiresFollowup: true,
	})
}

func (s *Service) clarificationChunks() []string {
	chunks := []string{"I'm not sure which service you need. I can help with:\n"}
	for _, d := range s.registry.Descriptors() {
		chunks = append(chunks, fmt.Sprintf("- %s: %s\n", d.Name, d.Description))
	}
	return append(chunks, "Could you tell me a bit more about what you are looking for?")
}

// failTurn streams a user-safe error as the final chunk and commits the
// partial exchange. The last-active handler is not updated.
func (s *Service) failTurn(h *TurnHandle, res *TurnResult, lg zerolog.Logger, sess *conversation.Session, message, handlerName, partial string, cause error) {
	lg.Error().Str("state", stateFailed).Str("handler", handlerName).Err(cause).Msg("turn failed")

	msg := userSafeMessage(cause)
	_ = h.out.Push(msg)

	text := partial
	if text != "" && !strings.HasSuffix(text, " ") {
		text += " "
	}
	text += msg

	res.Failed = true
	s.commitTurn(lg, sess, res, message, commitSpec{handler: handlerName, text: text})
}

// cancelTurn commits whatever the turn produced before the client went
// away. Slots and the last-active handler are left untouched.
func (s *Service) cancelTurn(res *TurnResult, lg zerolog.Logger, sess *conversation.Session, message, handlerName, partial string) {
	lg.Info().Str("handler", handlerName).Msg("turn cancelled, committing partial state")

	res.Cancelled = true
	s.commitTurn(lg, sess, res, message, commitSpec{handler: handlerName, text: partial})
}

type commitSpec struct {
	handler          string
	text             string
	slots            map[string]string
	updateLast       bool
	requiresFollowup bool
}

// commitTurn appends the exchange to the session and persists it. The
// commit context is detached so a client cancel cannot abort persistence.
func (s *Service) commitTurn(lg zerolog.Logger, sess *conversation.Session, res *TurnResult, message string, cs commitSpec) {
	userTurn := sess.AppendTurn(conversation.RoleUser, message, "")
	res.UserTurnID = userTurn.ID
	if cs.text != "" {
		assistantTurn := sess.AppendTurn(conversation.RoleAssistant, cs.text, cs.handler)
		res.AssistantTurnID = assistantTurn.ID
	}
	if len(cs.slots) > 0 {
		sess.MergeSlots(cs.handler, cs.slots)
	}
	if cs.updateLast {
		sess.LastHandler = cs.handler
	}

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	err := s.sessions.Commit(ctx, res.SessionID, sess)

	res.Persisted = err == nil
	res.Response = cs.text
	res.RequiresFollowup = cs.requiresFollowup
	lg.Info().Str("state", stateCommitted).Bool("persisted", res.Persisted).Msg("turn committed")
}

func userSafeMessage(err error) string {
	var he *capability.HandlerError
	if errors.As(err, &he) && he.UserMessage != "" {
		return he.UserMessage
	}
	return genericFailureText
}

// asksFollowup marks replies that end on a question so transports can flag
// that more input is expected.
func asksFollowup(text string) bool {
	return strings.HasSuffix(strings.TrimSpace(text), "?")
}
