package qstash

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishPostsToDestination(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotAuth string
		gotBody string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"messageId":"msg_123"}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, Token: "secret"})
	require.NoError(t, err)

	id, err := client.Publish(context.Background(), "https://hooks.example.com/tickets", []byte(`{"user_id":"1001-A"}`))
	require.NoError(t, err)
	assert.Equal(t, "msg_123", id)
	assert.Equal(t, "/v2/publish/https://hooks.example.com/tickets", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.JSONEq(t, `{"user_id":"1001-A"}`, gotBody)
}

func TestPublishSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, Token: "secret"})
	require.NoError(t, err)

	_, err = client.Publish(context.Background(), "dest", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{URL: "", Token: "x"})
	assert.Error(t, err)

	_, err = NewClient(Config{URL: "https://qstash.upstash.io"})
	assert.Error(t, err)

	assert.False(t, Config{Token: "x"}.Enabled())
	assert.True(t, Config{Token: "x", Destination: "d"}.Enabled())
}

func TestPublishOnNilClient(t *testing.T) {
	t.Parallel()

	var c *Client
	_, err := c.Publish(context.Background(), "d", nil)
	assert.ErrorIs(t, err, ErrDisabled)
}
