package nodes

import (
	"errors"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/support-router/agent/contract"
)

func fixedClock() func() time.Time {
	at := time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestTurnRecorderProducesValidTurn(t *testing.T) {
	t.Parallel()

	rec := NewTurnRecorder("s1", "balance please", fixedClock())
	if err := rec.Decision(contractx.Delegate(contractx.AgentCoordinator, contractx.AgentBilling, "billing")); err != nil {
		t.Fatalf("Decision() error = %v", err)
	}
	req, err := rec.ToolRequest(contractx.AgentBilling, contractx.ToolRequest{CallID: "c1", Tool: "billing-history"}, nil)
	if err != nil {
		t.Fatalf("ToolRequest() error = %v", err)
	}
	if err := rec.ToolResult(contractx.AgentBilling, contractx.ToolResult{CallID: req.CallID, Tool: "billing-history", Status: contractx.ToolSuccess}); err != nil {
		t.Fatalf("ToolResult() error = %v", err)
	}

	turn, err := rec.Close(3, contractx.AgentBilling, "Balance Due: $49.99", contractx.OutcomeReplied)
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := turn.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if turn.Seq != 3 || turn.RoutedTo != contractx.AgentBilling || turn.Reply != "Balance Due: $49.99" {
		t.Fatalf("unexpected turn: %#v", turn)
	}
	if len(turn.Events) != 5 {
		t.Fatalf("got %d events, want 5", len(turn.Events))
	}
}

func TestTurnRecorderRejectsWritesAfterClose(t *testing.T) {
	t.Parallel()

	rec := NewTurnRecorder("s1", "hi", fixedClock())
	if _, err := rec.Close(0, contractx.AgentCoordinator, "hello", contractx.OutcomeAnswered); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !rec.Closed() {
		t.Fatal("Closed() = false")
	}

	if _, err := rec.ToolRequest(contractx.AgentBilling, contractx.ToolRequest{CallID: "x", Tool: "t"}, nil); !errors.Is(err, contractx.ErrTurnClosed) {
		t.Fatalf("ToolRequest() error = %v, want ErrTurnClosed", err)
	}
	if err := rec.Decision(contractx.Refuse(contractx.AgentCoordinator, "late")); !errors.Is(err, contractx.ErrTurnClosed) {
		t.Fatalf("Decision() error = %v, want ErrTurnClosed", err)
	}
	if _, err := rec.Close(0, contractx.AgentCoordinator, "again", contractx.OutcomeAnswered); !errors.Is(err, contractx.ErrTurnClosed) {
		t.Fatalf("second Close() error = %v, want ErrTurnClosed", err)
	}
	if got := len(rec.Turn().Events); got != 2 {
		t.Fatalf("closed turn changed: %d events", got)
	}
}

func TestTurnRecorderCancelsOpenRequestsOnClose(t *testing.T) {
	t.Parallel()

	rec := NewTurnRecorder("s1", "open a ticket", fixedClock())
	_ = rec.Decision(contractx.Delegate(contractx.AgentCoordinator, contractx.AgentBilling, "ticket"))
	if _, err := rec.ToolRequest(contractx.AgentBilling, contractx.ToolRequest{CallID: "c1", Tool: "submit-ticket"}, nil); err != nil {
		t.Fatalf("ToolRequest() error = %v", err)
	}

	turn, err := rec.Close(0, contractx.AgentCoordinator, TimeoutReply, contractx.OutcomeTimeout)
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := turn.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	results := turn.ToolResults()
	if len(results) != 1 || results[0].ErrorCode != contractx.CodeCancelled || results[0].CallID != "c1" {
		t.Fatalf("unexpected results: %#v", results)
	}
}

func TestTurnRecorderRewritesDuplicateCallIDs(t *testing.T) {
	t.Parallel()

	rec := NewTurnRecorder("s1", "x", fixedClock())
	first, _ := rec.ToolRequest(contractx.AgentTechnical, contractx.ToolRequest{CallID: "c1", Tool: "reference-lookup"}, nil)
	_ = rec.ToolResult(contractx.AgentTechnical, contractx.ToolResult{CallID: first.CallID})
	second, _ := rec.ToolRequest(contractx.AgentTechnical, contractx.ToolRequest{CallID: "c1", Tool: "reference-lookup"}, nil)
	if second.CallID == "c1" || second.CallID == "" {
		t.Fatalf("duplicate call id kept: %q", second.CallID)
	}
	if err := rec.ToolResult(contractx.AgentTechnical, contractx.ToolResult{CallID: "unknown"}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("ToolResult() error = %v, want ErrValidation", err)
	}
}

func TestTurnRecorderConcurrentCloseHasOneWinner(t *testing.T) {
	t.Parallel()

	rec := NewTurnRecorder("s1", "x", time.Now)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rec.Close(0, contractx.AgentCoordinator, "done", contractx.OutcomeAnswered); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
}

func TestTurnRecorderStoresRedactedRequest(t *testing.T) {
	t.Parallel()

	rec := NewTurnRecorder("s1", "update my card", fixedClock())
	mask := func(req contractx.ToolRequest) contractx.ToolRequest {
		req.Args = map[string]any{"token": "****1234"}
		req.CallID = "changed"
		return req
	}
	req, err := rec.ToolRequest(contractx.AgentBilling, contractx.ToolRequest{
		CallID: "c1",
		Tool:   "payment-method-update",
		Args:   map[string]any{"token": "4111111111111234"},
	}, mask)
	if err != nil {
		t.Fatalf("ToolRequest() error = %v", err)
	}
	if req.Args["token"] != "4111111111111234" {
		t.Fatalf("returned request lost its arguments: %#v", req.Args)
	}

	stored := rec.Turn().ToolRequests()
	if len(stored) != 1 || stored[0].Args["token"] != "****1234" || stored[0].CallID != "c1" {
		t.Fatalf("unexpected stored request: %#v", stored)
	}
}
