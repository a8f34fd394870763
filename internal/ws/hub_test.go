package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticVerifier map[string]string

func (v staticVerifier) Verify(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

type stubPortfolio struct{}

func (stubPortfolio) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	return &models.Portfolio{UserID: userID, UsedToday: 5}, nil
}

type stubTraders struct{}

func (stubTraders) GetTraderDetails(ctx context.Context, traderID string) (*models.TraderDetails, error) {
	return &models.TraderDetails{TraderID: traderID, Followers: 3}, nil
}

type recordingUpstream struct {
	mu      sync.Mutex
	traders []string
	symbols []string
}

func (u *recordingUpstream) SubscribeToTrader(id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.traders = append(u.traders, id)
	return nil
}

func (u *recordingUpstream) SubscribeToMarketData(symbols []string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.symbols = append(u.symbols, symbols...)
	return nil
}

func (u *recordingUpstream) traderCalls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.traders...)
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestHub(t *testing.T) (*Hub, *recordingUpstream, string) {
	t.Helper()
	upstream := &recordingUpstream{}
	hub := NewHub(Options{SendBuffer: 16}, Deps{
		Verifier:  staticVerifier{"good": "u1"},
		Portfolio: stubPortfolio{},
		Traders:   stubTraders{},
		Upstream:  upstream,
		Logger:    zap.NewNop(),
	})
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, upstream, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.SocketMessage{Type: event, Data: raw}))
}

// expect reads until a message of the given type arrives.
func expect(t *testing.T, conn *websocket.Conn, event string) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg inbound
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == event {
			return msg
		}
	}
}

func TestGuestCannotFetchPortfolio(t *testing.T) {
	_, _, url := newTestHub(t)
	conn := dial(t, url, nil)

	send(t, conn, "get_portfolio", nil)
	msg := expect(t, conn, "error")

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.Equal(t, "get_portfolio", resp.Event)
}

func TestInvalidTokenDowngradesToGuest(t *testing.T) {
	hub, _, url := newTestHub(t)
	conn := dial(t, url+"?token=bad", nil)

	send(t, conn, "get_portfolio", nil)
	expect(t, conn, "error")
	assert.Equal(t, 1, hub.GetClientCount())
}

func TestAuthenticatedPortfolio(t *testing.T) {
	_, _, url := newTestHub(t)
	conn := dial(t, url, http.Header{"Authorization": []string{"Bearer good"}})

	send(t, conn, "get_portfolio", nil)
	msg := expect(t, conn, "portfolio_update")

	var p models.Portfolio
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, "u1", p.UserID)
}

func TestSubscribeTraderReceivesTradeUpdates(t *testing.T) {
	hub, upstream, url := newTestHub(t)
	follower := dial(t, url, nil)
	other := dial(t, url, nil)

	send(t, follower, "subscribe_trader", map[string]string{"traderId": "t1"})
	expect(t, follower, "subscription_confirmed")
	send(t, follower, "subscribe_trader", map[string]string{"traderId": "t1"})
	expect(t, follower, "subscription_confirmed")
	assert.Equal(t, []string{"t1"}, upstream.traderCalls())

	send(t, other, "ping", nil)
	expect(t, other, "pong")

	n := hub.BroadcastTradeUpdate(models.TradeSignal{TraderID: "t1", Symbol: "BTC", Side: models.TradeSideBuy, Amount: 1})
	assert.Equal(t, 1, n)

	msg := expect(t, follower, "trade_update")
	var sig models.TradeSignal
	require.NoError(t, json.Unmarshal(msg.Data, &sig))
	assert.Equal(t, "BTC", sig.Symbol)
}

func TestTraderIDIsTrimmed(t *testing.T) {
	hub, upstream, url := newTestHub(t)
	conn := dial(t, url, nil)

	send(t, conn, "subscribe_trader", map[string]string{"traderId": " t1 "})
	msg := expect(t, conn, "subscription_confirmed")
	assert.Contains(t, string(msg.Data), `"t1"`)
	send(t, conn, "ping", nil)
	expect(t, conn, "pong")
	assert.Equal(t, []string{"t1"}, upstream.traderCalls())

	assert.Equal(t, 1, hub.BroadcastTradeUpdate(models.TradeSignal{TraderID: "t1", Symbol: "BTC"}))
	expect(t, conn, "trade_update")

	send(t, conn, "unsubscribe_trader", map[string]string{"traderId": "t1\t"})
	expect(t, conn, "subscription_confirmed")
	assert.Zero(t, hub.BroadcastTradeUpdate(models.TradeSignal{TraderID: "t1"}))
}

func TestMarketUpdateRouting(t *testing.T) {
	hub, upstream, url := newTestHub(t)
	conn := dial(t, url, nil)

	send(t, conn, "subscribe_market", map[string][]string{"symbols": {"btc", " eth "}})
	expect(t, conn, "subscription_confirmed")
	send(t, conn, "ping", nil)
	expect(t, conn, "pong")

	upstream.mu.Lock()
	assert.Equal(t, []string{"BTC", "ETH"}, upstream.symbols)
	upstream.mu.Unlock()

	assert.Zero(t, hub.BroadcastMarketData(models.MarketUpdate{Symbol: "SOL", Price: 1}))
	assert.Equal(t, 1, hub.BroadcastMarketData(models.MarketUpdate{Symbol: "eth", Price: 2}))
	expect(t, conn, "market_update")
}

func TestPositionUpdatesOnlyReachAuthenticatedOwner(t *testing.T) {
	hub, _, url := newTestHub(t)
	owner := dial(t, url, http.Header{"Authorization": []string{"Bearer good"}})
	guest := dial(t, url, nil)

	for _, c := range []*websocket.Conn{owner, guest} {
		send(t, c, "ping", nil)
		expect(t, c, "pong")
	}

	assert.Equal(t, 1, hub.BroadcastPositionUpdate(models.PositionUpdate{UserID: "u1", Symbol: "BTC", Quantity: 1}))
	expect(t, owner, "position_update")

	assert.Equal(t, 1, hub.SendNotificationToUser("u1", models.Notification{Kind: "copy_trade_executed"}))
	expect(t, owner, "notification")
}

func TestTraderDetailsAndErrors(t *testing.T) {
	_, _, url := newTestHub(t)
	conn := dial(t, url, nil)

	send(t, conn, "get_trader_details", map[string]string{"traderId": "t7"})
	msg := expect(t, conn, "trader_details")
	var d models.TraderDetails
	require.NoError(t, json.Unmarshal(msg.Data, &d))
	assert.Equal(t, 3, d.Followers)

	send(t, conn, "subscribe_trader", map[string]string{})
	expect(t, conn, "subscription_error")

	send(t, conn, "launch_rockets", nil)
	expect(t, conn, "error")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	expect(t, conn, "error")
}

func TestDisconnectRemovesSubscription(t *testing.T) {
	hub, _, url := newTestHub(t)
	conn := dial(t, url, nil)

	send(t, conn, "subscribe_trader", map[string]string{"traderId": "t1"})
	expect(t, conn, "subscription_confirmed")
	require.Equal(t, 1, hub.GetClientCount())
	assert.Equal(t, Status{Clients: 1}, hub.Status())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, hub.Status().Clients)
	assert.Zero(t, hub.BroadcastTradeUpdate(models.TradeSignal{TraderID: "t1"}))
}
