package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

const (
	SubmitTicketName      = "submit-ticket"
	DefaultTicketLogPath  = "tickets.log"
	ticketFilePermissions = 0o644
)

// Publisher forwards a durable ticket to a downstream queue.
type Publisher interface {
	Publish(ctx context.Context, destination string, body []byte) (string, error)
}

type Ticket struct {
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketLog appends one line per ticket to a local file. Appends are
// serialized and each is fsynced before success is reported, so interleaved
// or partial records cannot occur.
type TicketLog struct {
	path string
	mu   sync.Mutex

	publisher   Publisher
	destination string

	now    func() time.Time
	logger zerolog.Logger
}

type TicketOption func(*TicketLog)

func WithPublisher(p Publisher, destination string) TicketOption {
	return func(l *TicketLog) {
		if p != nil && strings.TrimSpace(destination) != "" {
			l.publisher = p
			l.destination = strings.TrimSpace(destination)
		}
	}
}

func WithTicketLogger(logger zerolog.Logger) TicketOption {
	return func(l *TicketLog) {
		l.logger = logger
	}
}

func WithTicketClock(now func() time.Time) TicketOption {
	return func(l *TicketLog) {
		if now != nil {
			l.now = now
		}
	}
}

func NewTicketLog(path string, opts ...TicketOption) *TicketLog {
	if strings.TrimSpace(path) == "" {
		path = DefaultTicketLogPath
	}
	l := &TicketLog{
		path:   path,
		now:    time.Now,
		logger: log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *TicketLog) Path() string { return l.path }

// FormatTicketLine renders the persisted record. Whitespace runs in the
// message collapse to one space and all whitespace is removed from the user
// id, so a record always occupies exactly one line.
func FormatTicketLine(userID, message string) string {
	flat := strings.Join(strings.Fields(message), " ")
	return fmt.Sprintf("[%s] - %s\n", flattenID(userID), flat)
}

func flattenID(id string) string {
	return strings.Join(strings.Fields(id), "")
}

func (l *TicketLog) Append(userID, message string) error {
	line := FormatTicketLine(userID, message)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, ticketFilePermissions)
	if err != nil {
		return err
	}
	n, err := f.WriteString(line)
	if err == nil && n != len(line) {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (l *TicketLog) Definition() Definition {
	return Definition{
		Name: SubmitTicketName,
		Description: "Submits a new refund or billing support ticket for the user. " +
			"Purchases up to 7 days old are eligible for a full refund, up to 30 days for a partial refund, older purchases for no refund.",
		Params: []Param{
			{Name: "user_id", Type: schema.String, Desc: "The unique identifier for the user.", Required: true},
			{Name: "message", Type: schema.String, Desc: "The contents of the ticket.", Required: true},
		},
	}
}

func (l *TicketLog) Execute(ctx context.Context, args Args) contractx.ToolResult {
	userID := flattenID(args.String("user_id"))
	message := strings.TrimSpace(args.String("message"))
	if userID == "" {
		return contractx.ToolResult{Status: contractx.ToolError, Message: "User ID is required to submit a ticket."}
	}
	if message == "" {
		return contractx.ToolResult{Status: contractx.ToolError, Message: "Ticket message must not be empty."}
	}

	if err := l.Append(userID, message); err != nil {
		l.logger.Error().Err(err).Str("path", l.path).Str("user_id", userID).Msg("ticket write failed")
		return errorResult(contractx.CodeExecutionError, "A system error prevented saving the data: "+err.Error())
	}

	data := map[string]any{"user_id": userID, "notified": false}
	if l.publisher != nil {
		data["notified"] = l.notify(ctx, Ticket{UserID: userID, Message: message, CreatedAt: l.now().UTC()})
	}
	return success(fmt.Sprintf("Data successfully saved for user %s.", userID), data)
}

func (l *TicketLog) notify(ctx context.Context, t Ticket) bool {
	body, err := json.Marshal(t)
	if err != nil {
		l.logger.Warn().Err(err).Msg("encode ticket notification")
		return false
	}
	id, err := l.publisher.Publish(ctx, l.destination, body)
	if err != nil {
		l.logger.Warn().Err(err).Str("destination", l.destination).Str("user_id", t.UserID).Msg("ticket notification failed")
		return false
	}
	l.logger.Debug().Str("message_id", id).Str("user_id", t.UserID).Msg("ticket notification published")
	return true
}
