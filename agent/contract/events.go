package contract

import (
	"time"

	"github.com/google/uuid"
)

// AuthorUser marks events written by the human side of the conversation.
const AuthorUser AgentName = "user"

type EventKind string

const (
	EventUserMessage EventKind = "user_message"
	EventAgentReply  EventKind = "agent_reply"
	EventToolRequest EventKind = "tool_request"
	EventToolResult  EventKind = "tool_result"
	EventDelegation  EventKind = "delegation"
)

// Event is one entry of a turn's transcript. Exactly one payload field is
// set, selected by Kind: Text for messages and replies, ToolRequest,
// ToolResult or Decision for the others.
type Event struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	Kind      EventKind `json:"kind"`
	Author    AgentName `json:"author"`
	Timestamp time.Time `json:"timestamp"`

	Text        string              `json:"text,omitempty"`
	ToolRequest *ToolRequest        `json:"tool_request,omitempty"`
	ToolResult  *ToolResult         `json:"tool_result,omitempty"`
	Decision    *DelegationDecision `json:"decision,omitempty"`
}

func NewID() string { return uuid.NewString() }

func NewUserMessage(text string, at time.Time) Event {
	return Event{ID: NewID(), Kind: EventUserMessage, Author: AuthorUser, Timestamp: at, Text: text}
}

func NewAgentReply(author AgentName, text string, at time.Time) Event {
	return Event{ID: NewID(), Kind: EventAgentReply, Author: author, Timestamp: at, Text: text}
}

func NewToolRequestEvent(author AgentName, req ToolRequest, at time.Time) Event {
	return Event{ID: NewID(), Kind: EventToolRequest, Author: author, Timestamp: at, ToolRequest: &req}
}

func NewToolResultEvent(author AgentName, res ToolResult, at time.Time) Event {
	return Event{ID: NewID(), Kind: EventToolResult, Author: author, Timestamp: at, ToolResult: &res}
}

func NewDelegationEvent(d DelegationDecision, at time.Time) Event {
	return Event{ID: NewID(), Kind: EventDelegation, Author: d.DecidedBy, Timestamp: at, Decision: &d}
}

// Clone returns a copy that shares no mutable state with e.
func (e Event) Clone() Event {
	out := e
	if e.ToolRequest != nil {
		req := *e.ToolRequest
		req.Args = cloneMap(e.ToolRequest.Args)
		out.ToolRequest = &req
	}
	if e.ToolResult != nil {
		res := *e.ToolResult
		res.Data = cloneMap(e.ToolResult.Data)
		out.ToolResult = &res
	}
	if e.Decision != nil {
		d := *e.Decision
		out.Decision = &d
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch typed := v.(type) {
		case map[string]any:
			out[k] = cloneMap(typed)
		case []any:
			out[k] = append([]any(nil), typed...)
		case []map[string]any:
			items := make([]map[string]any, len(typed))
			for i, item := range typed {
				items[i] = cloneMap(item)
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}
