package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type traderRequest struct {
	TraderID string `json:"traderId"`
}

type marketRequest struct {
	Symbols []string `json:"symbols"`
}

type pongResponse struct {
	Timestamp int64 `json:"timestamp"`
}

// identity is who a connection belongs to. Guests get a fresh id per connect.
type identity struct {
	userID        string
	authenticated bool
}

func (h *Hub) authenticate(r *http.Request) identity {
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token != "" && h.verifier != nil {
		userID, err := h.verifier.Verify(token)
		if err == nil && userID != "" {
			return identity{userID: userID, authenticated: true}
		}
		h.logger.Debug("token rejected, connecting as guest", zap.Error(err))
	}
	return identity{userID: "guest_" + uuid.NewString()}
}

func (h *Hub) HandleConnection(c *gin.Context) {
	h.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP upgrades the request. Missing or invalid credentials never
// reject the connection; they only downgrade it to a guest.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := h.authenticate(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	send := h.registry.Add(connID, id.userID, id.authenticated)
	h.logger.Info("client connected",
		zap.String("conn_id", connID),
		zap.String("user_id", id.userID),
		zap.Bool("authenticated", id.authenticated),
	)

	go h.writePump(conn, send)
	go h.readPump(connID, conn)
}

func (h *Hub) readPump(connID string, conn *websocket.Conn) {
	defer func() {
		h.registry.Remove(connID)
		h.logger.Info("client disconnected", zap.String("conn_id", connID))
	}()

	conn.SetReadLimit(h.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", zap.String("conn_id", connID), zap.Error(err))
			}
			return
		}
		h.handleMessage(connID, message)
	}
}

func (h *Hub) writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case payload, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleMessage(connID string, raw []byte) {
	var msg models.SocketMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.replyError(connID, "", "invalid message format")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.RequestTimeout)
	defer cancel()

	switch msg.Type {
	case "subscribe_trader":
		h.handleSubscribeTrader(connID, msg)
	case "unsubscribe_trader":
		h.handleUnsubscribeTrader(connID, msg)
	case "subscribe_market":
		h.handleSubscribeMarket(connID, msg)
	case "get_portfolio":
		h.handleGetPortfolio(ctx, connID, msg)
	case "get_trader_details":
		h.handleGetTraderDetails(ctx, connID, msg)
	case "ping":
		h.reply(connID, "pong", pongResponse{Timestamp: time.Now().UnixMilli()})
	default:
		h.replyError(connID, msg.Type, "unknown event")
	}
}

func parseTraderID(raw json.RawMessage) (string, bool) {
	var req traderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", false
	}
	id := strings.TrimSpace(req.TraderID)
	return id, id != ""
}

func (h *Hub) handleSubscribeTrader(connID string, msg models.SocketMessage) {
	traderID, ok := parseTraderID(msg.Data)
	if !ok {
		h.reply(connID, "subscription_error", models.ErrorResponse{Error: "traderId is required", Event: msg.Type})
		return
	}

	added, err := h.registry.SubscribeTrader(connID, traderID)
	if err != nil {
		return
	}
	h.reply(connID, "subscription_confirmed", models.SubscriptionResponse{Channel: "trader", TraderID: traderID, Subscribed: true})

	if added && h.upstream != nil {
		if err := h.upstream.SubscribeToTrader(traderID); err != nil {
			h.logger.Debug("upstream trader subscribe failed", zap.String("trader_id", traderID), zap.Error(err))
		}
	}
}

func (h *Hub) handleUnsubscribeTrader(connID string, msg models.SocketMessage) {
	traderID, ok := parseTraderID(msg.Data)
	if !ok {
		h.reply(connID, "subscription_error", models.ErrorResponse{Error: "traderId is required", Event: msg.Type})
		return
	}
	if err := h.registry.UnsubscribeTrader(connID, traderID); err != nil {
		return
	}
	h.reply(connID, "subscription_confirmed", models.SubscriptionResponse{Channel: "trader", TraderID: traderID, Subscribed: false})
}

func (h *Hub) handleSubscribeMarket(connID string, msg models.SocketMessage) {
	var req marketRequest
	_ = json.Unmarshal(msg.Data, &req)

	symbols := make([]string, 0, len(req.Symbols))
	for _, s := range req.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		h.reply(connID, "subscription_error", models.ErrorResponse{Error: "symbols are required", Event: msg.Type})
		return
	}

	added, err := h.registry.SubscribeSymbols(connID, symbols)
	if err != nil {
		return
	}
	h.reply(connID, "subscription_confirmed", models.SubscriptionResponse{Channel: "market", Symbols: symbols, Subscribed: true})

	if len(added) > 0 && h.upstream != nil {
		if err := h.upstream.SubscribeToMarketData(added); err != nil {
			h.logger.Debug("upstream market subscribe failed", zap.Strings("symbols", added), zap.Error(err))
		}
	}
}

func (h *Hub) handleGetPortfolio(ctx context.Context, connID string, msg models.SocketMessage) {
	sub, ok := h.registry.Get(connID)
	if !ok {
		return
	}
	if !sub.Authenticated {
		h.replyError(connID, msg.Type, "authentication required")
		return
	}
	if h.portfolio == nil {
		h.replyError(connID, msg.Type, "portfolio unavailable")
		return
	}
	portfolio, err := h.portfolio.GetPortfolio(ctx, sub.UserID)
	if err != nil {
		h.logger.Warn("get portfolio failed", zap.String("user_id", sub.UserID), zap.Error(err))
		h.replyError(connID, msg.Type, "failed to load portfolio")
		return
	}
	h.reply(connID, "portfolio_update", portfolio)
}

func (h *Hub) handleGetTraderDetails(ctx context.Context, connID string, msg models.SocketMessage) {
	traderID, ok := parseTraderID(msg.Data)
	if !ok {
		h.replyError(connID, msg.Type, "traderId is required")
		return
	}
	if h.traders == nil {
		h.replyError(connID, msg.Type, "trader directory unavailable")
		return
	}
	details, err := h.traders.GetTraderDetails(ctx, traderID)
	if err != nil {
		h.logger.Warn("get trader details failed", zap.String("trader_id", traderID), zap.Error(err))
		h.replyError(connID, msg.Type, "failed to load trader details")
		return
	}
	h.reply(connID, "trader_details", details)
}
