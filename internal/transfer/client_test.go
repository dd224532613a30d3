package transfer

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, tokenHandler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler)
	mux.HandleFunc("/files/quote.pdf", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	})
	mux.HandleFunc("/files/empty.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(&Config{
		TokenURL:     srv.URL + "/token",
		ClientID:     "client",
		ClientSecret: "secret",
		Scope:        "files.read",
		Timeout:      5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return client, srv
}

func TestDownload(t *testing.T) {
	var tokenCalls atomic.Int32

	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "client", r.Form.Get("client_id"))
		assert.Equal(t, "secret", r.Form.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600,"token_type":"Bearer"}`))
	})

	data, contentType, err := client.Download(context.Background(), srv.URL+"/files/quote.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 fake"), data)
	assert.Equal(t, "application/pdf", contentType)

	// Second download reuses the cached token
	_, _, err = client.Download(context.Background(), srv.URL+"/files/quote.pdf")
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestAccessTokenRefreshAfterExpiry(t *testing.T) {
	var tokenCalls atomic.Int32

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		// expires_in below the refresh buffer forces a fetch every call
		w.Write([]byte(`{"access_token":"tok-1","expires_in":1,"token_type":"Bearer"}`))
	})

	_, err := client.AccessToken(context.Background())
	require.NoError(t, err)

	_, err = client.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), tokenCalls.Load())
}

func TestAccessTokenFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad client", http.StatusBadRequest)
	})

	_, err := client.AccessToken(context.Background())
	require.Error(t, err)
}

func TestDownloadEmptyFile(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600,"token_type":"Bearer"}`))
	})

	_, _, err := client.Download(context.Background(), srv.URL+"/files/empty.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}
