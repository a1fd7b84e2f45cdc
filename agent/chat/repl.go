// Package chat is the line-oriented console front end.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

const (
	SentinelQuit = "quit"
	userPrompt   = "\nYou > "
	agentPrompt  = "\nAgent > "
	emptyHint    = "Please type a question, or quit to leave."
	maxLineBytes = 64 * 1024
)

type TurnHandler interface {
	HandleMessage(ctx context.Context, sessionID, userID, text string) (contractx.Turn, error)
}

type REPL struct {
	handler   TurnHandler
	sessionID string
	userID    string
	logger    zerolog.Logger
}

type Option func(*REPL)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *REPL) {
		r.logger = logger
	}
}

func New(handler TurnHandler, sessionID, userID string, opts ...Option) *REPL {
	r := &REPL{
		handler:   handler,
		sessionID: sessionID,
		userID:    userID,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run reads one request per line until the sentinel, end of input or
// cancellation. Every other line gets an Agent line back.
func (r *REPL) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if _, err := io.WriteString(out, userPrompt); err != nil {
			return err
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, SentinelQuit) {
			return nil
		}
		if line == "" {
			if _, err := fmt.Fprintln(out, emptyHint); err != nil {
				return err
			}
			continue
		}

		if _, err := fmt.Fprintf(out, "%s%s\n", agentPrompt, r.reply(ctx, line)); err != nil {
			return err
		}
	}
}

func (r *REPL) reply(ctx context.Context, line string) string {
	turn, err := r.handler.HandleMessage(ctx, r.sessionID, r.userID, line)
	if err != nil {
		r.logger.Warn().Err(err).Str("session_id", r.sessionID).Msg("turn failed")
		if turn.Reply != "" {
			return turn.Reply
		}
		return "Sorry, the request could not be processed: " + err.Error()
	}
	return turn.Reply
}
