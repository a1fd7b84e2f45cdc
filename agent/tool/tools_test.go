package tool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

func TestBillingHistoryKnownUsers(t *testing.T) {
	t.Parallel()

	b := NewBillingHistory(DefaultLedger())

	res := b.Execute(context.Background(), Args{"user_id": "1001-A"})
	require.Equal(t, contractx.ToolSuccess, res.Status)
	assert.Equal(t, AccountCurrent, res.Data["account_status"])
	rows := res.Data["transactions"].([]map[string]any)
	require.Len(t, rows, 3)
	assert.Equal(t, "15.00", rows[2]["amount"])

	res = b.Execute(context.Background(), Args{"user_id": "2002-b"})
	require.Equal(t, contractx.ToolSuccess, res.Status)
	assert.Equal(t, "Balance Due: $49.99", res.Data["account_status"])
}

func TestBillingHistoryUnknownUser(t *testing.T) {
	t.Parallel()

	res := NewBillingHistory(DefaultLedger()).Execute(context.Background(), Args{"user_id": "9999-Z"})
	assert.Equal(t, contractx.ToolError, res.Status)
	assert.Equal(t, "User ID not found in the billing system.", res.Message)
	assert.Equal(t, AccountError, res.Data["account_status"])
	assert.Empty(t, res.Data["transactions"])
}

func TestBillingHistoryIsIdempotent(t *testing.T) {
	t.Parallel()

	b := NewBillingHistory(DefaultLedger())

	first := b.Execute(context.Background(), Args{"user_id": "2002-B"})
	require.Equal(t, contractx.ToolSuccess, first.Status)
	want := fmt.Sprint(first.Data["transactions"])

	rows := first.Data["transactions"].([]map[string]any)
	require.NotEmpty(t, rows)
	rows[0]["amount"] = "0.00"
	rows[0]["status"] = "Refunded"

	second := b.Execute(context.Background(), Args{"user_id": "2002-B"})
	require.Equal(t, contractx.ToolSuccess, second.Status)
	assert.Equal(t, want, fmt.Sprint(second.Data["transactions"]))
	assert.Equal(t, first.Data["account_status"], second.Data["account_status"])
}

func TestPaymentMethodUpdate(t *testing.T) {
	t.Parallel()

	p := NewPaymentMethodUpdate()

	res := p.Execute(context.Background(), Args{"user_id": "1001-A", "method_type": "Visa", "token": "4111111111111234"})
	require.Equal(t, contractx.ToolSuccess, res.Status)
	assert.Equal(t, "Successfully updated payment method for user 1001-A to Visa ending in 1234.", res.Message)
	assert.NotContains(t, res.Message, "4111111111111234")

	res = p.Execute(context.Background(), Args{"user_id": "3003-C", "method_type": "Visa", "token": "4242"})
	assert.Equal(t, contractx.ToolFailure, res.Status)
	assert.Equal(t, "Payment processor denied the request for security review on this account.", res.Message)

	res = p.Execute(context.Background(), Args{"user_id": "1001-A", "method_type": "Visa", "token": "12"})
	assert.Equal(t, contractx.ToolError, res.Status)
	assert.Nil(t, res.Data)

	res = p.Execute(context.Background(), Args{"user_id": "", "method_type": "Visa", "token": "123456"})
	assert.Equal(t, contractx.ToolError, res.Status)
	assert.Equal(t, "User ID is required for updating payment method.", res.Message)
}

func TestPaymentMethodUpdateNeverExposesMoreThanLastFour(t *testing.T) {
	t.Parallel()

	p := NewPaymentMethodUpdate()
	const digits = "98765432109876543210"
	for n := 0; n <= len(digits); n++ {
		token := digits[:n]
		res := p.Execute(context.Background(), Args{"user_id": "1001-A", "method_type": "Visa", "token": token})

		if n < 4 {
			assert.Equal(t, contractx.ToolError, res.Status, "length %d", n)
			assert.Nil(t, res.Data, "length %d", n)
			continue
		}
		require.Equal(t, contractx.ToolSuccess, res.Status, "length %d", n)
		last4 := token[n-4:]
		assert.Equal(t, last4, res.Data["last4"], "length %d", n)
		assert.True(t, strings.HasSuffix(res.Message, "ending in "+last4+"."), res.Message)
		if n > 4 {
			lastFive := token[n-5:]
			assert.NotContains(t, res.Message, lastFive, "length %d", n)
			assert.NotContains(t, fmt.Sprint(res.Data), lastFive, "length %d", n)
		}
		assert.Equal(t, "****"+last4, MaskSecret(token))
	}
	assert.Equal(t, "****", MaskSecret("123"))
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	bodies []string
}

func (f *fakePublisher) Publish(_ context.Context, destination string, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.bodies = append(f.bodies, destination+":"+string(body))
	return "msg_1", nil
}

func TestTicketLogAppendsRecord(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tickets.log")
	pub := &fakePublisher{}
	l := NewTicketLog(path, WithPublisher(pub, "tickets"), WithTicketLogger(zerolog.Nop()))

	res := l.Execute(context.Background(), Args{"user_id": "1001-A", "message": "refund for\norder 42"})
	require.Equal(t, contractx.ToolSuccess, res.Status)
	assert.Equal(t, "Data successfully saved for user 1001-A.", res.Message)
	assert.Equal(t, true, res.Data["notified"])
	require.Len(t, pub.bodies, 1)
	assert.True(t, strings.HasPrefix(pub.bodies[0], "tickets:"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[1001-A] - refund for order 42\n", string(raw))
}

func TestTicketLogKeepsOneRecordPerLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tickets.log")
	l := NewTicketLog(path, WithTicketLogger(zerolog.Nop()))

	res := l.Execute(context.Background(), Args{"user_id": "1001-A\n[9999-Z] - forged", "message": "refund please"})
	require.Equal(t, contractx.ToolSuccess, res.Status)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	require.Len(t, lines, 1, string(raw))
	assert.Equal(t, "[1001-A[9999-Z]-forged] - refund please", lines[0])
	assert.NotContains(t, res.Message, "\n")
}

func TestTicketLogPublisherFailureKeepsSuccess(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tickets.log")
	l := NewTicketLog(path, WithPublisher(&fakePublisher{err: errors.New("queue down")}, "tickets"), WithTicketLogger(zerolog.Nop()))

	res := l.Execute(context.Background(), Args{"user_id": "2002-B", "message": "double charge"})
	assert.Equal(t, contractx.ToolSuccess, res.Status)
	assert.Equal(t, false, res.Data["notified"])
}

func TestTicketLogWriteFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing-dir", "tickets.log")
	l := NewTicketLog(path, WithTicketLogger(zerolog.Nop()))

	res := l.Execute(context.Background(), Args{"user_id": "1001-A", "message": "refund"})
	assert.Equal(t, contractx.ToolError, res.Status)
	assert.True(t, strings.HasPrefix(res.Message, "A system error prevented saving the data: "), res.Message)
}

func TestTicketLogConcurrentAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tickets.log")
	l := NewTicketLog(path, WithTicketLogger(zerolog.Nop()))

	const writers = 40
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := strings.Repeat(fmt.Sprintf("m%d ", i), 50)
			if err := l.Append(fmt.Sprintf("user-%d", i), msg); err != nil {
				t.Errorf("Append() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		var user string
		_, err := fmt.Sscanf(line, "[%s", &user)
		require.NoError(t, err, line)
		id := strings.TrimSuffix(user, "]")
		assert.Equal(t, FormatTicketLine(id, strings.Repeat(fmt.Sprintf("m%s ", strings.TrimPrefix(id, "user-")), 50)), line+"\n")
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, writers, lines)
}

func TestReferenceLookup(t *testing.T) {
	t.Parallel()

	r := NewReferenceLookup()

	res := r.Execute(context.Background(), Args{"topic": "troubleshooting"})
	require.Equal(t, contractx.ToolSuccess, res.Status)
	assert.Contains(t, res.Data["content"], "Service Fails to Start")

	res = r.Execute(context.Background(), Args{"topic": "Integration Tips"})
	require.Equal(t, contractx.ToolSuccess, res.Status)
	assert.Contains(t, res.Data["content"], "local API")

	res = r.Execute(context.Background(), Args{"topic": "pricing"})
	assert.Equal(t, contractx.ToolFailure, res.Status)
	assert.Equal(t, contractx.CodeNotCovered, res.ErrorCode)
	assert.NoError(t, res.Err())
}

func TestRefundEligibilityTool(t *testing.T) {
	t.Parallel()

	r := NewRefundEligibility(fixedNow)
	cases := map[string]string{
		"2025-11-05": "FULL",
		"2025-11-03": "FULL",
		"2025-10-20": "PARTIAL",
		"2025-10-11": "PARTIAL",
		"2025-09-01": "NONE",
	}
	for date, want := range cases {
		res := r.Execute(context.Background(), Args{"purchase_date": date})
		require.Equal(t, contractx.ToolSuccess, res.Status, date)
		assert.Equal(t, want, res.Data["eligibility"], date)
	}

	res := r.Execute(context.Background(), Args{"purchase_date": "2025-12-01"})
	assert.Equal(t, contractx.CodeInvalidArguments, res.ErrorCode)

	res = r.Execute(context.Background(), Args{"purchase_date": "next tuesday"})
	assert.Equal(t, contractx.CodeInvalidArguments, res.ErrorCode)
	assert.Contains(t, res.Message, `"purchase_date"`)
}
