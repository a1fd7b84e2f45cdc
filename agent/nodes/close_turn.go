package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/support-router/agent/contract"
	statex "github.com/tanpawarit/support-router/agent/state"
)

const persistTimeout = 10 * time.Second

func CloseTurn(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	sink contractx.TurnSink,
	logger zerolog.Logger,
) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("close turn: graph state is nil")
	}
	if strings.TrimSpace(in.Reply) == "" {
		return GraphOutput{}, fmt.Errorf("%w: %s produced an empty reply", contractx.ErrSchemaViolation, in.Author)
	}

	turn, err := in.Recorder.Close(in.Session.Len(), in.Author, in.Reply, in.Outcome)
	if err != nil {
		return GraphOutput{}, err
	}
	if err := PersistTurn(ctx, store, sink, in.Session, in.UserID, turn, logger); err != nil {
		return GraphOutput{Turn: turn}, err
	}
	return GraphOutput{Turn: turn}, nil
}

// PersistTurn appends a closed turn and saves the session. It ignores
// cancellation of ctx: a turn that was closed is always written. Archive
// failures are logged and do not fail the turn.
func PersistTurn(
	ctx context.Context,
	store statex.Store,
	sink contractx.TurnSink,
	session *statex.Session,
	userID string,
	turn contractx.Turn,
	logger zerolog.Logger,
) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := session.Append(turn); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	if err := store.Save(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if sink != nil {
		if err := sink.Record(ctx, userID, turn); err != nil {
			logger.Warn().Err(err).Str("session_id", turn.SessionID).Str("turn_id", turn.ID).Msg("archive turn failed")
		}
	}

	logger.Info().
		Str("session_id", turn.SessionID).
		Int("seq", turn.Seq).
		Str("outcome", string(turn.Outcome)).
		Str("routed_to", string(turn.RoutedTo)).
		Int("events", len(turn.Events)).
		Msg("turn closed")
	return nil
}
