package socket

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"

	"go.uber.org/zap"
)

var (
	ErrNotConnected       = errors.New("feed not connected")
	ErrReconnectExhausted = errors.New("feed reconnect attempts exhausted")
)

const (
	channelTraderTrades = "trader_trades"
	channelMarketData   = "market_data"

	eventBuffer = 64
)

type Config struct {
	Policy Policy
	// HeartbeatInterval is how often a client heartbeat is sent while connected.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout forces a reconnect when no inbound heartbeat arrived
	// for this long. Zero disables the watchdog.
	HeartbeatTimeout time.Duration
}

type Status struct {
	Phase         string    `json:"phase"`
	Connected     bool      `json:"connected"`
	Attempt       int       `json:"attempt"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	Generation    uint64    `json:"generation"`
	Traders       int       `json:"traders"`
	Symbols       int       `json:"symbols"`
}

type subscribeCommand struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel"`
	Params  map[string]any `json:"params"`
}

type heartbeatData struct {
	Timestamp int64 `json:"timestamp"`
}

// tradeUpdateWire accepts the loose side spellings some venues send.
type tradeUpdateWire struct {
	TraderID  string  `json:"traderId"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// FeedClient keeps one connection to the upstream signal feed alive and
// dispatches its frames to typed handlers. All state changes go through the
// run loop; handlers run on the reader goroutine in frame order.
type FeedClient struct {
	dialer Dialer
	cfg    Config
	logger *zap.Logger

	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	state   ConnectionState
	conn    Conn
	timer   *time.Timer
	stopped bool

	// traders and symbols hold every tracked interest; the value reports
	// whether the subscribe command reached the current connection.
	traders map[string]bool
	symbols map[string]bool

	writeMu sync.Mutex

	onTrade       func(models.TradeSignal)
	onPerformance func(models.TraderPerformance)
	onMarket      func(models.MarketUpdate)
	onPosition    func(models.PositionUpdate)
	onConnect     func(ctx context.Context)
}

func NewFeedClient(dialer Dialer, cfg Config, logger *zap.Logger) *FeedClient {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &FeedClient{
		dialer:  dialer,
		cfg:     cfg,
		logger:  logger.Named("feed"),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		traders: make(map[string]bool),
		symbols: make(map[string]bool),
	}
}

// Handlers must be registered before Run.
func (c *FeedClient) OnTradeUpdate(fn func(models.TradeSignal))             { c.onTrade = fn }
func (c *FeedClient) OnTraderPerformance(fn func(models.TraderPerformance)) { c.onPerformance = fn }
func (c *FeedClient) OnMarketData(fn func(models.MarketUpdate))             { c.onMarket = fn }
func (c *FeedClient) OnPositionUpdate(fn func(models.PositionUpdate))       { c.onPosition = fn }

// OnConnect runs in its own goroutine after every successful (re)connect,
// once tracked subscriptions were replayed.
func (c *FeedClient) OnConnect(fn func(ctx context.Context)) { c.onConnect = fn }

// Run connects and blocks until ctx is cancelled or reconnects are exhausted.
// It must be called once.
func (c *FeedClient) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.stopTimer()
	defer c.drain()

	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	var watchdog <-chan time.Time
	if c.cfg.HeartbeatTimeout > 0 {
		t := time.NewTicker(c.cfg.HeartbeatTimeout / 2)
		defer t.Stop()
		watchdog = t.C
	}

	c.apply(ctx, EventStart{})
	for {
		select {
		case <-ctx.Done():
			c.apply(ctx, EventStop{})
			return ctx.Err()

		case ev := <-c.events:
			if c.apply(ctx, ev) == PhaseFailed {
				return ErrReconnectExhausted
			}

		case <-heartbeat.C:
			if c.Status().Connected {
				c.sendHeartbeat()
			}

		case now := <-watchdog:
			st := c.snapshot()
			if st.Connected && now.Sub(st.LastHeartbeat) > c.cfg.HeartbeatTimeout {
				c.logger.Warn("heartbeat timeout", zap.Time("last_heartbeat", st.LastHeartbeat))
				c.apply(ctx, EventHeartbeatTimeout{Gen: st.Generation})
			}
		}
	}
}

func (c *FeedClient) post(ev Event) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	select {
	case c.events <- ev:
		c.mu.Unlock()
		return true
	default:
	}
	c.mu.Unlock()

	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// drain stops accepting events and closes connections that were dialled
// after the run loop stopped reading.
func (c *FeedClient) drain() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	for {
		select {
		case ev := <-c.events:
			if e, ok := ev.(EventConnected); ok && e.Conn != nil {
				_ = e.Conn.Close()
			}
		default:
			return
		}
	}
}

func (c *FeedClient) apply(ctx context.Context, ev Event) Phase {
	c.mu.Lock()
	prev := c.state
	next, effects := Transition(c.state, ev, c.cfg.Policy)
	c.state = next

	if e, ok := ev.(EventConnected); ok {
		if prev.Phase == PhaseConnecting && next.Phase == PhaseConnected {
			c.conn = e.Conn
			for k := range c.traders {
				c.traders[k] = false
			}
			for k := range c.symbols {
				c.symbols[k] = false
			}
			go c.readLoop(e.Gen, e.Conn)
		} else if e.Conn != nil {
			go e.Conn.Close()
		}
	}
	c.mu.Unlock()

	if prev.Phase != next.Phase {
		c.logger.Info("feed state changed",
			zap.Stringer("from", prev.Phase),
			zap.Stringer("to", next.Phase),
			zap.Int("attempt", next.Attempt),
		)
	}

	for _, eff := range effects {
		c.execute(ctx, eff)
	}
	return next.Phase
}

func (c *FeedClient) execute(ctx context.Context, eff Effect) {
	switch e := eff.(type) {
	case EffectDial:
		go func() {
			conn, err := c.dialer.Dial(ctx)
			if err != nil {
				c.logger.Warn("dial failed", zap.Uint64("generation", e.Gen), zap.Error(err))
				c.post(EventDialFailed{Gen: e.Gen, Err: err})
				return
			}
			if !c.post(EventConnected{Gen: e.Gen, At: time.Now(), Conn: conn}) {
				_ = conn.Close()
			}
		}()

	case EffectScheduleReconnect:
		c.logger.Info("scheduling reconnect", zap.Duration("delay", e.Delay), zap.Uint64("generation", e.Gen))
		t := time.AfterFunc(e.Delay, func() { c.post(EventReconnectTimer{Gen: e.Gen}) })
		c.mu.Lock()
		if c.timer != nil {
			c.timer.Stop()
		}
		c.timer = t
		c.mu.Unlock()

	case EffectReplaySubscriptions:
		c.replay()
		if c.onConnect != nil {
			go c.onConnect(ctx)
		}

	case EffectSendHeartbeat:
		c.sendHeartbeat()

	case EffectCloseConn:
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}

	case EffectFailed:
		c.logger.Error("giving up on upstream feed", zap.Int("max_attempts", c.cfg.Policy.MaxAttempts))
	}
}

func (c *FeedClient) stopTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *FeedClient) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.post(EventClosed{Gen: gen, Err: err})
			return
		}
		c.dispatch(data)
	}
}

func (c *FeedClient) dispatch(data []byte) {
	var msg models.SocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	switch msg.Type {
	case "heartbeat":
		c.post(EventHeartbeat{At: time.Now()})

	case "trade_update":
		var w tradeUpdateWire
		if err := json.Unmarshal(msg.Data, &w); err != nil {
			c.logger.Warn("bad trade_update", zap.Error(err))
			return
		}
		side, ok := models.ParseTradeSide(w.Side)
		if !ok {
			c.logger.Warn("trade_update with unknown side", zap.String("side", w.Side), zap.String("trader_id", w.TraderID))
			return
		}
		if c.onTrade != nil {
			c.onTrade(models.TradeSignal{
				TraderID:  w.TraderID,
				Symbol:    w.Symbol,
				Side:      side,
				Amount:    w.Amount,
				Price:     w.Price,
				Timestamp: w.Timestamp,
			})
		}

	case "trader_performance":
		var perf models.TraderPerformance
		if err := json.Unmarshal(msg.Data, &perf); err != nil {
			c.logger.Warn("bad trader_performance", zap.Error(err))
			return
		}
		if c.onPerformance != nil {
			c.onPerformance(perf)
		}

	case "market_data":
		var update models.MarketUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			c.logger.Warn("bad market_data", zap.Error(err))
			return
		}
		if c.onMarket != nil {
			c.onMarket(update)
		}

	case "position_update":
		var update models.PositionUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			c.logger.Warn("bad position_update", zap.Error(err))
			return
		}
		if c.onPosition != nil {
			c.onPosition(update)
		}

	default:
		c.logger.Debug("dropping unknown frame", zap.String("type", msg.Type))
	}
}

// SubscribeToTrader records interest in a trader and sends the subscribe
// command. Repeated calls for a tracked trader are no-ops. Interest recorded
// while disconnected is replayed on the next connect.
func (c *FeedClient) SubscribeToTrader(traderID string) error {
	c.mu.Lock()
	sent := c.traders[traderID]
	c.traders[traderID] = sent
	conn, connected := c.conn, c.state.Connected
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	if sent {
		return nil
	}
	if err := c.write(conn, subscribeCommand{
		Type:    "subscribe",
		Channel: channelTraderTrades,
		Params:  map[string]any{"traderId": traderID},
	}); err != nil {
		return err
	}
	c.markSent(conn, c.traders, []string{traderID})
	return nil
}

// SubscribeToMarketData sends a subscribe command for symbols not yet tracked.
func (c *FeedClient) SubscribeToMarketData(symbols []string) error {
	c.mu.Lock()
	fresh := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || c.symbols[s] {
			continue
		}
		c.symbols[s] = false
		fresh = append(fresh, s)
	}
	conn, connected := c.conn, c.state.Connected
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := c.write(conn, subscribeCommand{
		Type:    "subscribe",
		Channel: channelMarketData,
		Params:  map[string]any{"symbols": fresh},
	}); err != nil {
		return err
	}
	c.markSent(conn, c.symbols, fresh)
	return nil
}

// markSent flags keys as delivered, unless the connection they were written
// to has been replaced meanwhile.
func (c *FeedClient) markSent(conn Conn, set map[string]bool, keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	for _, k := range keys {
		set[k] = true
	}
}

func (c *FeedClient) replay() {
	c.mu.Lock()
	conn := c.conn
	traders := sortedKeys(c.traders)
	symbols := sortedKeys(c.symbols)
	c.mu.Unlock()

	if conn == nil {
		return
	}
	for _, id := range traders {
		if err := c.write(conn, subscribeCommand{Type: "subscribe", Channel: channelTraderTrades, Params: map[string]any{"traderId": id}}); err != nil {
			c.logger.Warn("replay trader subscription failed", zap.String("trader_id", id), zap.Error(err))
			return
		}
		c.markSent(conn, c.traders, []string{id})
	}
	if len(symbols) > 0 {
		if err := c.write(conn, subscribeCommand{Type: "subscribe", Channel: channelMarketData, Params: map[string]any{"symbols": symbols}}); err != nil {
			c.logger.Warn("replay market subscription failed", zap.Error(err))
			return
		}
		c.markSent(conn, c.symbols, symbols)
	}
	c.logger.Info("subscriptions replayed", zap.Int("traders", len(traders)), zap.Int("symbols", len(symbols)))
}

func (c *FeedClient) sendHeartbeat() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if err := c.write(conn, models.OutboundMessage{Type: "heartbeat", Data: heartbeatData{Timestamp: time.Now().UnixMilli()}}); err != nil {
		c.logger.Debug("heartbeat write failed", zap.Error(err))
	}
}

func (c *FeedClient) write(conn Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(data)
}

func (c *FeedClient) snapshot() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *FeedClient) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Phase:         c.state.Phase.String(),
		Connected:     c.state.Connected,
		Attempt:       c.state.Attempt,
		LastHeartbeat: c.state.LastHeartbeat,
		Generation:    c.state.Generation,
		Traders:       len(c.traders),
		Symbols:       len(c.symbols),
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
