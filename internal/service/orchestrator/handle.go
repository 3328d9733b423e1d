package orchestrator

import (
	"context"
	"sync"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
	"github.com/wrenlabs/concierge/backend/internal/service/intent"
)

// TurnResult is the settled outcome of a turn, valid once Recv has returned
// io.EOF (or via Result, which waits for settlement).
type TurnResult struct {
	SessionID        string
	UserTurnID       string
	AssistantTurnID  string
	Handler          string
	Response         string
	RequiresFollowup bool
	Persisted        bool
	Failed           bool
	Cancelled        bool
}

// TurnHandle is the consumer's view of an in-flight turn. Chunks are pulled
// with Recv; production is paced by consumption.
type TurnHandle struct {
	sessionID string
	turnID    string
	cancel    context.CancelFunc
	out       *capability.Stream

	routedOnce sync.Once
	routed     chan struct{}
	decision   intent.Decision

	doneOnce sync.Once
	done     chan struct{}
	result   TurnResult
}

func newTurnHandle(sessionID, turnID string, cancel context.CancelFunc, out *capability.Stream) *TurnHandle {
	return &TurnHandle{
		sessionID: sessionID,
		turnID:    turnID,
		cancel:    cancel,
		out:       out,
		routed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (h *TurnHandle) SessionID() string { return h.sessionID }

// Recv returns the next reply chunk, io.EOF once the turn has ended, or the
// consumer's context error.
func (h *TurnHandle) Recv(ctx context.Context) (string, error) {
	return h.out.Recv(ctx)
}

// Cancel abandons the turn. The engine stops pulling from the handler and
// commits whatever partial state it holds; no error is surfaced.
func (h *TurnHandle) Cancel() {
	h.cancel()
}

// Decision blocks until routing has completed, before the first chunk is
// produced, and returns the routing decision. A turn aborted before routing
// yields the zero decision.
func (h *TurnHandle) Decision() intent.Decision {
	<-h.routed
	return h.decision
}

// Result blocks until the turn has fully settled, stream ended and commit
// attempted, and returns the outcome.
func (h *TurnHandle) Result() TurnResult {
	<-h.done
	return h.result
}

func (h *TurnHandle) publishDecision(d intent.Decision) {
	h.routedOnce.Do(func() {
		h.decision = d
		close(h.routed)
	})
}

// complete publishes the result and ends the outbound stream. The first
// call wins.
func (h *TurnHandle) complete(res TurnResult) {
	h.routedOnce.Do(func() {
		close(h.routed)
	})
	h.doneOnce.Do(func() {
		h.result = res
		close(h.done)
		h.out.Close()
	})
}
