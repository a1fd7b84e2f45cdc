package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/support-router/agent/contract"
	nodex "github.com/tanpawarit/support-router/agent/nodes"
	statex "github.com/tanpawarit/support-router/agent/state"
)

type fakeService struct {
	turn    contractx.Turn
	err     error
	history []contractx.Turn
	histErr error

	gotSession, gotUser, gotText string
}

func (f *fakeService) HandleMessage(_ context.Context, sessionID, userID, text string) (contractx.Turn, error) {
	f.gotSession, f.gotUser, f.gotText = sessionID, userID, text
	return f.turn, f.err
}

func (f *fakeService) History(context.Context, string) ([]contractx.Turn, error) {
	return f.history, f.histErr
}

func closed(reply string, outcome contractx.TurnOutcome) contractx.Turn {
	at := time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)
	return contractx.Turn{ID: "t1", SessionID: "s1", Reply: reply, Outcome: outcome, StartedAt: at, ClosedAt: at}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostTurnReturnsTurn(t *testing.T) {
	t.Parallel()

	svc := &fakeService{turn: closed("Balance Due: $49.99", contractx.OutcomeReplied)}
	rec := do(t, NewRouter(svc, zerolog.Nop()), http.MethodPost, "/v1/sessions/s1/turns", `{"user_id":"2002-B","text":"balance?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", svc.gotSession)
	assert.Equal(t, "2002-B", svc.gotUser)
	assert.Equal(t, "balance?", svc.gotText)

	var body turnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Balance Due: $49.99", body.Turn.Reply)
	assert.Empty(t, body.Error)
}

func TestPostTurnStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		svc  *fakeService
		body string
		want int
	}{
		{name: "bad json", svc: &fakeService{}, body: `not json`, want: http.StatusBadRequest},
		{name: "empty message", svc: &fakeService{err: nodex.ErrInvalidMessage}, body: `{"text":""}`, want: http.StatusBadRequest},
		{name: "timeout", svc: &fakeService{turn: closed(nodex.TimeoutReply, contractx.OutcomeTimeout), err: contractx.ErrTimeout}, body: `{"text":"x"}`, want: http.StatusGatewayTimeout},
		{name: "failed but closed", svc: &fakeService{turn: closed(nodex.FailedReply, contractx.OutcomeFailed), err: contractx.ErrModelInvoke}, body: `{"text":"x"}`, want: http.StatusOK},
		{name: "unexpected", svc: &fakeService{err: errors.New("boom")}, body: `{"text":"x"}`, want: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, NewRouter(tc.svc, zerolog.Nop()), http.MethodPost, "/v1/sessions/s1/turns", tc.body)
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestListTurns(t *testing.T) {
	t.Parallel()

	svc := &fakeService{history: []contractx.Turn{closed("hi", contractx.OutcomeAnswered)}}
	rec := do(t, NewRouter(svc, zerolog.Nop()), http.MethodGet, "/v1/sessions/s1/turns", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Turns []contractx.Turn `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Turns, 1)

	rec = do(t, NewRouter(&fakeService{histErr: statex.ErrStateNotFound}, zerolog.Nop()), http.MethodGet, "/v1/sessions/missing/turns", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := do(t, NewRouter(&fakeService{}, zerolog.Nop()), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
