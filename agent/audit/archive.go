// Package audit archives closed turns in a SQL database through bun. A
// postgres:// DSN selects Postgres; anything else is treated as a SQLite
// file or URI.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/support-router/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

var ErrEmptyDSN = errors.New("archive dsn is empty")

var _ contractx.TurnSink = (*Archive)(nil)

type turnRecord struct {
	bun.BaseModel `bun:"table:support_turns,alias:st"`

	ID        string    `bun:"id,pk"`
	SessionID string    `bun:"session_id,notnull"`
	UserID    string    `bun:"user_id"`
	Seq       int       `bun:"seq,notnull"`
	UserText  string    `bun:"user_text"`
	Reply     string    `bun:"reply"`
	Outcome   string    `bun:"outcome"`
	RoutedTo  string    `bun:"routed_to"`
	Events    string    `bun:"events"`
	StartedAt time.Time `bun:"started_at"`
	ClosedAt  time.Time `bun:"closed_at"`
}

type Archive struct {
	db *bun.DB
}

func Open(ctx context.Context, dsn string) (*Archive, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrEmptyDSN
	}

	var db *bun.DB
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		sqldb, err := sql.Open("sqlite", strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite archive: %w", err)
		}
		// One writer at a time avoids SQLITE_BUSY.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	a, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// New prepares the schema on an existing connection.
func New(ctx context.Context, db *bun.DB) (*Archive, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*turnRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("create support_turns: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*turnRecord)(nil)).
		Index("support_turns_session_seq_idx").
		Column("session_id", "seq").
		IfNotExists().
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("create support_turns index: %w", err)
	}
	return &Archive{db: db}, nil
}

// Record stores one closed turn. Recording the same turn twice is a no-op.
func (a *Archive) Record(ctx context.Context, userID string, turn contractx.Turn) error {
	if !turn.Closed() {
		return fmt.Errorf("%w: turn %s is not closed", contractx.ErrValidation, turn.ID)
	}
	events, err := json.Marshal(turn.Events)
	if err != nil {
		return fmt.Errorf("encode turn events: %w", err)
	}

	rec := &turnRecord{
		ID:        turn.ID,
		SessionID: turn.SessionID,
		UserID:    userID,
		Seq:       turn.Seq,
		UserText:  turn.UserText,
		Reply:     turn.Reply,
		Outcome:   string(turn.Outcome),
		RoutedTo:  string(turn.RoutedTo),
		Events:    string(events),
		StartedAt: turn.StartedAt.UTC(),
		ClosedAt:  turn.ClosedAt.UTC(),
	}
	if _, err := a.db.NewInsert().Model(rec).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert turn %s: %w", turn.ID, err)
	}
	return nil
}

// Turns reads a session's archived turns ordered by position.
func (a *Archive) Turns(ctx context.Context, sessionID string) ([]contractx.Turn, error) {
	var rows []turnRecord
	if err := a.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("select turns: %w", err)
	}

	turns := make([]contractx.Turn, 0, len(rows))
	for _, r := range rows {
		t := contractx.Turn{
			ID:        r.ID,
			Seq:       r.Seq,
			SessionID: r.SessionID,
			UserText:  r.UserText,
			Reply:     r.Reply,
			Outcome:   contractx.TurnOutcome(r.Outcome),
			RoutedTo:  contractx.AgentName(r.RoutedTo),
			StartedAt: r.StartedAt.UTC(),
			ClosedAt:  r.ClosedAt.UTC(),
		}
		if err := json.Unmarshal([]byte(r.Events), &t.Events); err != nil {
			return nil, fmt.Errorf("decode events of turn %s: %w", r.ID, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}
