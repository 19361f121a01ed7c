package twitter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raidbot/internal/models"
)

func TestExtractTweetID(t *testing.T) {
	tests := []struct {
		name  string
		link  string
		want  string
		valid bool
	}{
		{"x.com status", "https://x.com/user/status/123456", "123456", true},
		{"twitter.com status", "https://twitter.com/web3kaiju/status/998877", "998877", true},
		{"with query params", "https://x.com/u/status/42?s=20", "42", true},
		{"profile link", "https://x.com/someuser", "", false},
		{"other site", "https://example.com/user/status/123", "", false},
		{"not a url", "hello world", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ExtractTweetID(tt.link)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

func testClient(serverURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    serverURL,
	}
}

func TestClient_HasLiked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/7/liked_tweets", r.URL.Path)
		require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"id":"111"},{"id":"222"}]}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	account := &models.Account{TwitterUserID: "7", TwitterAccessToken: "token-1"}

	liked, err := client.HasLiked(context.Background(), account, "222")
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = client.HasLiked(context.Background(), account, "999")
	require.NoError(t, err)
	assert.False(t, liked)
}

func TestClient_HasLiked_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	_, err := client.HasLiked(context.Background(), &models.Account{TwitterUserID: "7", TwitterAccessToken: "bad"}, "1")
	assert.Error(t, err)
}

func TestClient_Me(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/me", r.URL.Path)
		w.Write([]byte(`{"data":{"id":"42","username":"web3kaiju","name":"Kaiju"}}`))
	}))
	defer srv.Close()

	user, err := testClient(srv.URL).Me(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "42", user.ID)
	assert.Equal(t, "web3kaiju", user.Username)
}
