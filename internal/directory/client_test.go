package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphStub struct {
	srv        *httptest.Server
	tokenCalls int
	userCalls  int
	usersCode  int
}

func newGraphStub(t *testing.T) *graphStub {
	t.Helper()
	g := &graphStub{usersCode: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		g.tokenCalls++
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostFormValue("grant_type") != "client_credentials" {
			http.Error(w, "wrong grant", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "stub-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		g.userCalls++
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "missing bearer", http.StatusUnauthorized)
			return
		}
		if g.usersCode != http.StatusOK {
			http.Error(w, "denied", g.usersCode)
			return
		}
		query := r.URL.Query()
		if query.Get("$top") == "" || query.Get("$select") == "" {
			http.Error(w, "missing odata params", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []Record{
				{ID: "u1", DisplayName: "Pat Example", Email: "pat@example.com", Principal: "pat@tenant.example", Enabled: true},
				{ID: "u2", DisplayName: "Sam Example", Principal: "sam@tenant.example", Enabled: false},
			},
		})
	})

	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *graphStub) client() *Client {
	return NewClient(ClientConfig{
		TenantID:     "tenant-1",
		ClientID:     "client-1",
		ClientSecret: "secret",
		BaseURL:      g.srv.URL,
		TokenURL:     g.srv.URL + "/token",
	})
}

func TestListUsers(t *testing.T) {
	stub := newGraphStub(t)
	client := stub.client()

	records, err := client.ListUsers(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Pat Example", records[0].DisplayName)
	assert.True(t, records[0].Enabled)
	assert.False(t, records[1].Enabled)
}

func TestListUsersReusesToken(t *testing.T) {
	stub := newGraphStub(t)
	client := stub.client()

	_, err := client.ListUsers(context.Background(), 10)
	require.NoError(t, err)
	_, err = client.ListUsers(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, stub.tokenCalls, "token must be cached across calls")
	assert.Equal(t, 2, stub.userCalls)
}

func TestListUsersGraphFailure(t *testing.T) {
	stub := newGraphStub(t)
	stub.usersCode = http.StatusForbidden
	client := stub.client()

	_, err := client.ListUsers(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestListUsersUnconfigured(t *testing.T) {
	client := NewClient(ClientConfig{})
	assert.False(t, client.Configured())

	_, err := client.ListUsers(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}
