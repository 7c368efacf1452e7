package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algodesk/internal/models"
	"algodesk/internal/session"
)

// wsBackend is a push-only fake of the backend's WebSocket endpoints.
type wsBackend struct {
	mu       sync.Mutex
	frames   map[string][]string // group -> frames sent on connect
	open     map[string]bool
	queries  []string
	upgrader websocket.Upgrader
}

func newWSBackend() *wsBackend {
	return &wsBackend{
		frames: map[string][]string{},
		open:   map[string]bool{},
	}
}

func (b *wsBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	group := r.URL.Query().Get("group")

	b.mu.Lock()
	b.queries = append(b.queries, r.URL.RawQuery)
	b.open[group] = true
	frames := b.frames[group]
	b.mu.Unlock()

	for _, f := range frames {
		conn.WriteMessage(websocket.TextMessage, []byte(f))
	}

	// Block until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	b.mu.Lock()
	b.open[group] = false
	b.mu.Unlock()
	conn.Close()
}

func (b *wsBackend) isOpen(group string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open[group]
}

func startChannel(t *testing.T, backend *wsBackend) (*Channel, *Hub) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	sess := session.New(nil, zerolog.Nop())
	require.NoError(t, sess.SetToken(context.Background(), "tok"))

	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub.Start(ctx)
	t.Cleanup(hub.Stop)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ch := NewChannel(KindDemat, wsURL, sess, hub, ChannelOptions{}, zerolog.Nop())
	t.Cleanup(func() { ch.Close() })
	return ch, hub
}

func TestChannelURL(t *testing.T) {
	sess := session.New(nil, zerolog.Nop())
	require.NoError(t, sess.SetToken(context.Background(), "tok"))
	hub := NewHub(zerolog.Nop())

	strategy := NewChannel(KindStrategy, "ws://host:8000", sess, hub, ChannelOptions{}, zerolog.Nop())
	assert.Equal(t, "ws://host:8000/ws/strategy?strategy=s1&token=tok", strategy.URL("s1"))
	assert.Equal(t, "strategy:s1", strategy.Scope("s1"))

	demat := NewChannel(KindDemat, "ws://host:8000", sess, hub, ChannelOptions{}, zerolog.Nop())
	assert.Equal(t, "ws://host:8000/ws/demat?group=g1&token=tok", demat.URL("g1"))
	assert.Equal(t, "group:g1", demat.Scope("g1"))

	market := NewChannel(KindMarket, "ws://host:8000", sess, hub, ChannelOptions{}, zerolog.Nop())
	assert.Equal(t, "ws://host:8000/ws/market?token=tok", market.URL(""))
	assert.Equal(t, ScopeMarket, market.Scope(""))
}

func TestChannelPublishesInArrivalOrder(t *testing.T) {
	backend := newWSBackend()
	backend.frames["g1"] = []string{
		`{"type":"demat_accounts","seq":1,"data":{"dematAccounts":[{"id":"a1","stats":{"pnl":"1"}}]}}`,
		`{"type":"demat_accounts","seq":2,"data":{"dematAccounts":[{"id":"a1","stats":{"pnl":"2"}}]}}`,
	}
	ch, hub := startChannel(t, backend)
	sub := hub.Subscribe(GroupScope("g1"))

	require.NoError(t, ch.Switch(context.Background(), "g1"))
	assert.Equal(t, "g1", ch.Key())

	var last Message
	deadline := time.After(2 * time.Second)
	for last.Seq != 2 {
		select {
		case msg := <-sub.C:
			assert.Greater(t, msg.Seq, last.Seq)
			last = msg
		case <-deadline:
			t.Fatalf("did not receive seq 2, last seq %d", last.Seq)
		}
	}

	assert.Equal(t, TypeDematAccounts, last.Type)
	var payload struct {
		DematAccounts []models.Account `json:"dematAccounts"`
	}
	require.NoError(t, json.Unmarshal(last.Data, &payload))
	assert.Equal(t, "2.00", payload.DematAccounts[0].Stats.PnL.Fixed())
}

func TestChannelSwitchClosesPrevious(t *testing.T) {
	backend := newWSBackend()
	ch, _ := startChannel(t, backend)

	require.NoError(t, ch.Switch(context.Background(), "g1"))
	assert.Eventually(t, func() bool { return backend.isOpen("g1") }, time.Second, 10*time.Millisecond)

	require.NoError(t, ch.Switch(context.Background(), "g2"))
	assert.Eventually(t, func() bool { return !backend.isOpen("g1") }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return backend.isOpen("g2") }, time.Second, 10*time.Millisecond)

	require.NoError(t, ch.Close())
	assert.Eventually(t, func() bool { return !backend.isOpen("g2") }, time.Second, 10*time.Millisecond)
	assert.Empty(t, ch.Key())

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.queries, 2)
	assert.Contains(t, backend.queries[0], "token=tok")
}

func TestDecodeMessageWrapsRawTicks(t *testing.T) {
	msg, err := DecodeMessage(ScopeMarket, []byte(`{"token":"26000","last_traded_price":2450075}`))
	require.NoError(t, err)
	assert.Equal(t, TypeMarketTick, msg.Type)

	var raw models.RawTick
	require.NoError(t, json.Unmarshal(msg.Data, &raw))
	assert.Equal(t, "26000", raw.Token)

	_, err = DecodeMessage(ScopeMarket, []byte(`not json`))
	assert.Error(t, err)
}

type fakeFetcher struct {
	accounts []models.Account
	calls    int
}

func (f *fakeFetcher) Children(_ context.Context, groupID string) ([]models.Account, error) {
	f.calls++
	return f.accounts, nil
}

func TestPollerPublishesChildren(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	fetcher := &fakeFetcher{accounts: []models.Account{{ID: "a1", ClientID: "C1", Stats: models.NewStats()}}}
	p := NewPoller(fetcher, hub, time.Hour, zerolog.Nop())
	sub := hub.Subscribe(GroupScope("g1"))

	require.NoError(t, p.PollNow(ctx, "g1"))

	select {
	case msg := <-sub.C:
		assert.Equal(t, TypeDematAccounts, msg.Type)
		var payload struct {
			DematAccounts []models.Account `json:"dematAccounts"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		require.Len(t, payload.DematAccounts, 1)
		assert.Equal(t, "C1", payload.DematAccounts[0].ClientID)
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}

	require.NoError(t, p.Watch("g1"))
	require.NoError(t, p.Switch("g2"))
	p.mu.Lock()
	_, g1 := p.entries["g1"]
	_, g2 := p.entries["g2"]
	p.mu.Unlock()
	assert.False(t, g1)
	assert.True(t, g2)
}
