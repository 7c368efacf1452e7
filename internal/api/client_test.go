package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algodesk/internal/config"
	apperrors "algodesk/internal/errors"
	"algodesk/internal/models"
	"algodesk/internal/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *session.Session) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sess := session.New(nil, zerolog.Nop())
	require.NoError(t, sess.SetToken(context.Background(), "tok"))

	c, err := NewClient(config.APIConfig{
		BaseURL:      srv.URL + "/api",
		Timeout:      2 * time.Second,
		ForwardedFor: "10.1.2.3",
	}, sess, zerolog.Nop())
	require.NoError(t, err)
	return c, sess
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestAuthenticatedHeadersAndDecode(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/groups/getChildren/g%201", r.URL.EscapedPath())
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "10.1.2.3", r.Header.Get("x-forwarded-for"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.Write([]byte(`{"status":true,"dematAccounts":[{"id":"a1","clientId":"C1","stats":{
			"margin":"1,000.50","pnl":12.5,
			"positions":[{"tradingsymbol":"NIFTY24AUGFUT","producttype":"CARRYFORWARD","buyqty":"75","sellqty":"0","pnl":"120.5"}],
			"orders":null}}]}`))
	})

	accounts, err := c.Children(context.Background(), "g 1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "C1", accounts[0].ClientID)
	assert.Equal(t, "1000.50", accounts[0].Stats.Margin.Fixed())
	pos := accounts[0].Stats.Positions["NIFTY24AUGFUT/CARRYFORWARD"]
	assert.Equal(t, int64(75), pos.NetQty())
	assert.NotNil(t, accounts[0].Stats.Orders)
}

func TestForwardedForDerivedWhenUnset(t *testing.T) {
	headers := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("x-forwarded-for")
		w.Write([]byte(`{"status":true,"groups":[]}`))
	}))
	t.Cleanup(srv.Close)

	sess := session.New(nil, zerolog.Nop())
	require.NoError(t, sess.SetToken(context.Background(), "tok"))
	c, err := NewClient(config.APIConfig{BaseURL: srv.URL + "/api"}, sess, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.Groups(context.Background())
	require.NoError(t, err)
	_, err = c.Groups(context.Background())
	require.NoError(t, err)

	first, second := <-headers, <-headers
	assert.NotEmpty(t, first)
	assert.NotNil(t, net.ParseIP(first), first)
	assert.Equal(t, first, second)
}

func TestOutboundAddr(t *testing.T) {
	u, err := url.Parse("http://127.0.0.1:8000/api/")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", outboundAddr(u))

	u, err = url.Parse("https://localhost/api/")
	require.NoError(t, err)
	assert.NotNil(t, net.ParseIP(outboundAddr(u)))
}

func TestStatusFalseBecomesAPIError(t *testing.T) {
	c, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": false, "message": "Order already executed"})
	})

	_, err := c.CancelOrder(context.Background(), "a1", "o1")
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Order already executed", apiErr.Message)
	assert.Equal(t, "Order already executed", apperrors.UserMessage(err, "failed to cancel order"))
	assert.True(t, sess.Authenticated(), "application failures keep the session")
}

func TestHTTPErrorCarriesServerMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"status": false, "message": "Group name taken"})
	})

	_, err := c.CreateGroup(context.Background(), GroupRequest{Name: "alpha"})
	var apiErr *apperrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Group name taken", apiErr.Message)
}

func TestForbiddenClearsSession(t *testing.T) {
	c, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"status": false, "message": "jwt expired"})
	})

	notified := false
	sess.OnUnauthorized(func() { notified = true })

	_, err := c.Groups(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.True(t, notified)
	assert.False(t, sess.Authenticated())
}

func TestTransportFailure(t *testing.T) {
	sess := session.New(nil, zerolog.Nop())
	require.NoError(t, sess.SetToken(context.Background(), "tok"))
	c, err := NewClient(config.APIConfig{BaseURL: "http://127.0.0.1:1/api/", Timeout: time.Second}, sess, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.Strategies(context.Background())
	var te *apperrors.TransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, "failed to load strategies", apperrors.UserMessage(err, "failed to load strategies"))
}

func TestNoTokenMakesNoCall(t *testing.T) {
	called := false
	c, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	require.NoError(t, sess.Clear(context.Background()))

	_, err := c.DematAccounts(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	assert.False(t, called)
}

func TestLoginStoresToken(t *testing.T) {
	c, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "ops@example.com", creds.Email)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": true,
			"token":  "fresh",
			"user":   map[string]interface{}{"id": "u1", "name": "Ops"},
		})
	})
	require.NoError(t, sess.Clear(context.Background()))

	user, err := c.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "Ops", user.Name)
	assert.Equal(t, "fresh", sess.Token())
}

func TestJobsQuery(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2024-08-01", q.Get("date"))
		assert.Equal(t, "25", q.Get("perPage"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "failed", q.Get("state"))
		w.Write([]byte(`{"status":true,"jobs":[{"id":"j1","name":"deploy","state":"failed","failedReason":"margin"}],"total":1,"page":2,"perPage":25}`))
	})

	page, err := c.Jobs(context.Background(), models.JobFilter{
		Date:    time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		PerPage: 25,
		Page:    2,
		State:   models.JobFailed,
	})
	require.NoError(t, err)
	require.Len(t, page.Jobs, 1)
	assert.True(t, page.Jobs[0].State.IsFinished())
}

func TestToggleMasterBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "g1", body["groupId"])
		assert.Equal(t, "a2", body["dematAccountId"])
		assert.Equal(t, "connect", body["action"])
		w.Write([]byte(`{"status":true,"group":{"id":"g1","name":"alpha","masterAccountId":"a2","memberAccountIds":["a1","a2"]}}`))
	})

	g, err := c.ToggleMaster(context.Background(), "g1", "a2", models.MasterConnect)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.True(t, g.IsMaster("a2"))
}
