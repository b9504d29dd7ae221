package alert

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopWithoutWebhook(t *testing.T) {
	notifier := NewNotifier("")
	assert.NoError(t, notifier.FetchFailure(5, errors.New("boom")))
	assert.NoError(t, notifier.Recovered(5))
}

func TestFetchFailurePayload(t *testing.T) {
	var got webhookMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL)
	require.NoError(t, notifier.FetchFailure(5, errors.New("rate limited")))

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "rate limited", got.Embeds[0].Description)
	assert.Equal(t, colorWarn, got.Embeds[0].Color)
	require.Len(t, got.Embeds[0].Fields, 1)
	assert.Equal(t, "5", got.Embeds[0].Fields[0].Value)
}

func TestFetchFailureEscalatesColor(t *testing.T) {
	var got webhookMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL)
	require.NoError(t, notifier.FetchFailure(12, errors.New("still down")))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, colorError, got.Embeds[0].Color)
}

func TestWebhookErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL)
	assert.Error(t, notifier.Recovered(5))
}
