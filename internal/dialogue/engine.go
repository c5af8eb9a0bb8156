package dialogue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brightsmile/clinic-assistant/internal/observability/metrics"
	"github.com/brightsmile/clinic-assistant/internal/session"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

var dialogueTracer = otel.Tracer("brightsmile.internal.dialogue")

var (
	// ErrTurnInProgress is returned when a turn arrives for a session that is
	// still processing its previous turn.
	ErrTurnInProgress = errors.New("dialogue: turn already in progress")
	// ErrActionLimitExceeded is returned when the model chains more action
	// invocations in one turn than the engine allows.
	ErrActionLimitExceeded = errors.New("dialogue: action chain limit exceeded")
)

// clarificationText is spoken when the model invokes something the current
// node does not offer, or with arguments that fail validation. The session is
// left exactly as it was.
const clarificationText = "I'm sorry, I didn't quite catch that. Could you tell me again what you'd like to do?"

// historyWindow caps how many prior turns are sent to the model.
const historyWindow = 20

type turnOutcome string

const (
	outcomeCompleted     turnOutcome = "completed"
	outcomeEnded         turnOutcome = "ended"
	outcomeClarification turnOutcome = "clarification"
	outcomeError         turnOutcome = "error"
	outcomeRejected      turnOutcome = "rejected"
)

// EngineConfig carries the engine's collaborators and tuning knobs.
type EngineConfig struct {
	Store       session.Store
	Gateway     Gateway
	Registry    *Registry
	Nodes       *Factory
	Transcripts *TranscriptStore // optional
	Metrics     *metrics.ConversationMetrics
	Logger      *logging.Logger
	TurnTimeout time.Duration
	MaxHops     int
	Now         func() time.Time
}

// Engine runs one dialogue turn at a time per session: it builds the current
// node, lets the model respond, validates and applies any action it invokes,
// and commits the session with optimistic concurrency.
type Engine struct {
	store       session.Store
	gateway     Gateway
	registry    *Registry
	nodes       *Factory
	transcripts *TranscriptStore
	metrics     *metrics.ConversationMetrics
	logger      *logging.Logger
	turnTimeout time.Duration
	maxHops     int
	now         func() time.Time

	mu       sync.Mutex
	inflight map[session.Key]struct{}
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 30 * time.Second
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:       cfg.Store,
		gateway:     cfg.Gateway,
		registry:    cfg.Registry,
		nodes:       cfg.Nodes,
		transcripts: cfg.Transcripts,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		turnTimeout: cfg.TurnTimeout,
		maxHops:     cfg.MaxHops,
		now:         cfg.Now,
		inflight:    make(map[session.Key]struct{}),
	}
}

// HandleTurn processes one user message for the keyed session and returns the
// assistant's reply. Concurrent turns on the same key are rejected with
// ErrTurnInProgress; turns on different keys proceed independently.
func (e *Engine) HandleTurn(ctx context.Context, key session.Key, userMessage string) (string, error) {
	if !e.acquire(key) {
		e.metrics.ObserveTurn(string(outcomeRejected), 0)
		return "", fmt.Errorf("%w: %s", ErrTurnInProgress, key)
	}
	defer e.release(key)

	e.metrics.TurnStarted()
	defer e.metrics.TurnFinished()

	ctx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()

	ctx, span := dialogueTracer.Start(ctx, "dialogue.HandleTurn")
	span.SetAttributes(attribute.String("session.key", key.String()))
	defer span.End()

	started := e.now()
	text, outcome, err := e.handleTurn(ctx, key, userMessage)
	e.metrics.ObserveTurn(string(outcome), e.now().Sub(started).Seconds())
	if err != nil {
		e.logger.Error("turn failed", "key", key.String(), "error", err)
		return "", err
	}
	return text, nil
}

func (e *Engine) handleTurn(ctx context.Context, key session.Key, userMessage string) (string, turnOutcome, error) {
	sess, err := e.store.GetOrCreate(ctx, key)
	if err != nil {
		return "", outcomeError, fmt.Errorf("load session: %w", err)
	}

	text, outcome, err := e.runTurn(ctx, sess, userMessage)
	if err != nil {
		return "", outcomeError, err
	}
	if outcome == outcomeClarification {
		// Nothing was applied; leave the stored session untouched.
		return text, outcome, nil
	}

	if err := e.store.Save(ctx, sess); err != nil {
		if !errors.Is(err, session.ErrStaleSession) {
			return "", outcomeError, fmt.Errorf("save session: %w", err)
		}
		// Another turn slipped in between load and save. Reload and replay
		// once against the fresh state; node building and validation are
		// deterministic, so the replay sees exactly what the store holds.
		e.logger.Warn("stale session save, replaying turn", "key", key.String())
		sess, err = e.store.GetOrCreate(ctx, key)
		if err != nil {
			return "", outcomeError, fmt.Errorf("reload session: %w", err)
		}
		text, outcome, err = e.runTurn(ctx, sess, userMessage)
		if err != nil {
			return "", outcomeError, err
		}
		if outcome != outcomeClarification {
			if err := e.store.Save(ctx, sess); err != nil {
				return "", outcomeError, fmt.Errorf("save session after replay: %w", err)
			}
		}
	}

	e.logTranscript(ctx, sess, userMessage, text)

	if outcome == outcomeEnded {
		if err := e.store.Expire(ctx, key); err != nil {
			e.logger.Error("expire session", "key", key.String(), "error", err)
		}
	}
	return text, outcome, nil
}

// runTurn drives the model/action loop against the given session copy. It
// mutates only that copy.
func (e *Engine) runTurn(ctx context.Context, sess *session.Session, userMessage string) (string, turnOutcome, error) {
	sess.AppendTurn("user", userMessage, e.now())

	hops := 0
	for {
		node, err := e.nodes.BuildNode(sess.CurrentNode, sess.Context)
		if err != nil {
			return "", outcomeError, err
		}
		schemas, err := e.registry.Schemas(node.Actions)
		if err != nil {
			return "", outcomeError, err
		}

		reply, err := e.gateway.Converse(ctx, Request{
			Instructions: node.Instructions,
			History:      e.history(sess),
			Actions:      schemas,
		})
		if err != nil {
			return "", outcomeError, fmt.Errorf("model call: %w", err)
		}

		if reply.Invocation == nil {
			sess.AppendTurn("assistant", reply.Text, e.now())
			if node.Terminal() {
				return reply.Text, outcomeEnded, nil
			}
			return reply.Text, outcomeCompleted, nil
		}

		if hops >= e.maxHops {
			return "", outcomeError, fmt.Errorf("%w: %d invocations in one turn", ErrActionLimitExceeded, hops+1)
		}
		hops++

		inv := reply.Invocation
		if !slices.Contains(node.Actions, inv.Name) {
			e.metrics.ObserveAction(inv.Name, "not_allowed")
			e.logger.Warn("action not allowed at node", "action", inv.Name, "node", node.Name)
			return clarificationText, outcomeClarification, nil
		}
		desc, err := e.registry.Resolve(inv.Name)
		if err != nil {
			e.metrics.ObserveAction(inv.Name, "unknown")
			return clarificationText, outcomeClarification, nil
		}
		args, err := ValidateArgs(desc.Schema, inv.Args)
		if err != nil {
			e.metrics.ObserveAction(inv.Name, "invalid_args")
			e.logger.Warn("invalid action arguments", "action", inv.Name, "error", err)
			return clarificationText, outcomeClarification, nil
		}

		next, err := desc.Handler(ctx, sess, args)
		if err != nil {
			// Handlers reject semantically malformed arguments (a date the
			// schema admitted as a string but that doesn't parse) the same way
			// schema validation does: re-prompt, nothing persisted.
			if errors.Is(err, ErrInvalidArguments) {
				e.metrics.ObserveAction(inv.Name, "invalid_args")
				e.logger.Warn("invalid action arguments", "action", inv.Name, "error", err)
				return clarificationText, outcomeClarification, nil
			}
			e.metrics.ObserveAction(inv.Name, "error")
			return "", outcomeError, fmt.Errorf("action %s: %w", inv.Name, err)
		}
		e.metrics.ObserveAction(inv.Name, "applied")
		if next == NodeAppointmentSuccess && sess.CurrentNode != NodeAppointmentSuccess {
			e.metrics.ObserveBooking()
		}
		e.logger.Info("action applied", "action", inv.Name, "from", sess.CurrentNode, "to", next)
		sess.CurrentNode = next
	}
}

func (e *Engine) history(sess *session.Session) []Message {
	turns := sess.History
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// logTranscript records the exchange durably, best effort.
func (e *Engine) logTranscript(ctx context.Context, sess *session.Session, userMessage, reply string) {
	if e.transcripts == nil {
		return
	}
	if err := e.transcripts.LogExchange(ctx, sess, userMessage, reply); err != nil {
		e.logger.Error("transcript write failed", "session_id", sess.ID, "error", err)
	}
}

func (e *Engine) acquire(key session.Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[key]; busy {
		return false
	}
	e.inflight[key] = struct{}{}
	return true
}

func (e *Engine) release(key session.Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, key)
}
