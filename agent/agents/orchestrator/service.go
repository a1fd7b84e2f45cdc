package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/support-router/agent/contract"
	nodex "github.com/tanpawarit/support-router/agent/nodes"
	statex "github.com/tanpawarit/support-router/agent/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

const (
	DefaultTurnTimeout   = 60 * time.Second
	DefaultMaxToolCycles = 8
)

type Config struct {
	TurnTimeout   time.Duration
	MaxToolCycles int
	// Coordinator authors replies for turns that end in a failure.
	Coordinator contractx.AgentName
}

type Orchestrator struct {
	store  statex.Store
	models contractx.Registry
	tools  contractx.ToolGateway
	sink   contractx.TurnSink

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	turnTimeout   time.Duration
	maxToolCycles int
	coordinator   contractx.AgentName

	locksMu sync.Mutex
	locks   map[string]*sessionLock

	now    func() time.Time
	logger zerolog.Logger
}

type Option func(*Orchestrator)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSink archives every closed turn.
func WithSink(sink contractx.TurnSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

func New(
	store statex.Store,
	models contractx.Registry,
	tools contractx.ToolGateway,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if models.Router() == nil {
		return nil, fmt.Errorf("%w: registry has no router", contractx.ErrConfiguration)
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	o := &Orchestrator{
		store:         store,
		models:        models,
		tools:         tools,
		turnTimeout:   cfg.TurnTimeout,
		maxToolCycles: cfg.MaxToolCycles,
		coordinator:   cfg.Coordinator,
		locks:         map[string]*sessionLock{},
		now:           time.Now,
		logger:        log.Logger,
	}
	if o.turnTimeout <= 0 {
		o.turnTimeout = DefaultTurnTimeout
	}
	if o.maxToolCycles <= 0 {
		o.maxToolCycles = DefaultMaxToolCycles
	}
	if strings.TrimSpace(string(o.coordinator)) == "" {
		o.coordinator = contractx.AgentCoordinator
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

type graphResult struct {
	turn contractx.Turn
	err  error
}

// HandleMessage resolves one user turn and returns it closed. Turns of the
// same session run one at a time; different sessions run concurrently.
// When the turn cannot finish it is still closed and stored with a
// timeout, aborted or failed outcome, and the returned error says why.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, userID, text string) (contractx.Turn, error) {
	sessionID = strings.TrimSpace(sessionID)
	text = strings.TrimSpace(text)
	if sessionID == "" {
		return contractx.Turn{}, ErrInvalidSession
	}
	if text == "" {
		return contractx.Turn{}, ErrInvalidMessage
	}

	release, err := o.acquire(ctx, sessionID)
	if err != nil {
		_, _, wrapped := nodex.Failure(err)
		return contractx.Turn{}, wrapped
	}
	defer release()

	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	rec := nodex.NewTurnRecorder(sessionID, text, o.now)
	done := make(chan graphResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- graphResult{err: fmt.Errorf("turn pipeline panicked: %v", r)}
			}
		}()
		out, err := o.graphRunner.Invoke(turnCtx, nodex.GraphInput{
			SessionID: sessionID,
			UserID:    userID,
			Text:      text,
			Recorder:  rec,
		})
		done <- graphResult{turn: out.Turn, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.turn, nil
		}
		return o.fail(ctx, rec, sessionID, userID, res.err, nil)
	case <-turnCtx.Done():
		return o.fail(ctx, rec, sessionID, userID, turnCtx.Err(), done)
	}
}

func (o *Orchestrator) fail(
	ctx context.Context,
	rec *nodex.TurnRecorder,
	sessionID, userID string,
	cause error,
	pending <-chan graphResult,
) (contractx.Turn, error) {
	outcome, reply, wrapped := nodex.Failure(cause)
	persistCtx := context.WithoutCancel(ctx)

	session, err := nodex.OpenSession(persistCtx, o.store, sessionID, userID, o.now())
	if err != nil {
		o.logger.Error().Err(err).Str("session_id", sessionID).Msg("load session for failed turn")
		closed, _ := rec.Close(0, o.coordinator, reply, outcome)
		return closed, errors.Join(wrapped, err)
	}

	turn, err := rec.Close(session.Len(), o.coordinator, reply, outcome)
	if errors.Is(err, contractx.ErrTurnClosed) {
		// The pipeline closed the turn first and is persisting it.
		if pending != nil {
			res := <-pending
			if res.err == nil {
				return res.turn, nil
			}
			return rec.Turn(), res.err
		}
		return rec.Turn(), cause
	}

	if err := nodex.PersistTurn(persistCtx, o.store, o.sink, session, userID, turn, o.logger); err != nil {
		o.logger.Error().Err(err).Str("session_id", sessionID).Msg("persist failed turn")
		wrapped = errors.Join(wrapped, err)
	}
	o.logger.Warn().Err(cause).Str("session_id", sessionID).Str("outcome", string(outcome)).Msg("turn ended early")
	return turn, wrapped
}

// History returns the closed turns of a session, oldest first.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]contractx.Turn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	s, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Turns(), nil
}

type sessionLock struct {
	ch   chan struct{}
	refs int
}

// acquire waits for exclusive use of a session or for ctx to end.
func (o *Orchestrator) acquire(ctx context.Context, sessionID string) (func(), error) {
	o.locksMu.Lock()
	l, ok := o.locks[sessionID]
	if !ok {
		l = &sessionLock{ch: make(chan struct{}, 1)}
		o.locks[sessionID] = l
	}
	l.refs++
	o.locksMu.Unlock()

	drop := func() {
		o.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, sessionID)
		}
		o.locksMu.Unlock()
	}

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			drop()
		}, nil
	case <-ctx.Done():
		drop()
		return nil, ctx.Err()
	}
}
