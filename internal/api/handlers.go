package api

import (
	"net/http"
	"strings"

	"github.com/mehrbod2002/copysignal/internal/service"
	"github.com/mehrbod2002/copysignal/internal/socket"
	"github.com/mehrbod2002/copysignal/internal/ws"

	"github.com/gin-gonic/gin"
)

type PriceHandler struct {
	priceService service.PriceService
}

func NewPriceHandler(priceService service.PriceService) *PriceHandler {
	return &PriceHandler{priceService: priceService}
}

// GetPrice returns the current quote for one symbol
// @Summary Get current price
// @Description Returns the best available quote; falls back to a static table when every provider fails
// @Tags Prices
// @Produce json
// @Param symbol path string true "Symbol, e.g. BTC"
// @Success 200 {object} models.PriceQuote
// @Router /prices/{symbol} [get]
func (h *PriceHandler) GetPrice(c *gin.Context) {
	quote := h.priceService.GetCurrentPrice(c.Request.Context(), c.Param("symbol"))
	c.JSON(http.StatusOK, quote)
}

// GetPrices returns quotes for a comma separated symbol list
// @Summary Get multiple prices
// @Tags Prices
// @Produce json
// @Param symbols query string true "Comma separated symbols"
// @Success 200 {object} map[string]models.PriceQuote
// @Failure 400 {object} map[string]string "No symbols"
// @Router /prices [get]
func (h *PriceHandler) GetPrices(c *gin.Context) {
	var symbols []string
	for _, s := range strings.Split(c.Query("symbols"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols query parameter required"})
		return
	}
	c.JSON(http.StatusOK, h.priceService.GetMultiplePrices(c.Request.Context(), symbols))
}

// GetStatus reports provider health
// @Summary Price provider status
// @Tags Prices
// @Produce json
// @Success 200 {object} models.ServiceStatus
// @Router /prices/status [get]
func (h *PriceHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.priceService.GetServiceStatus(c.Request.Context()))
}

type FeedStatusSource interface {
	Status() socket.Status
}

type FeedHandler struct {
	feed FeedStatusSource
}

func NewFeedHandler(feed FeedStatusSource) *FeedHandler {
	return &FeedHandler{feed: feed}
}

// GetStatus reports the upstream feed connection state
// @Summary Upstream feed status
// @Tags Feed
// @Produce json
// @Success 200 {object} socket.Status
// @Router /feed/status [get]
func (h *FeedHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.feed.Status())
}

type HubStatusSource interface {
	Status() ws.Status
}

type HubHandler struct {
	hub HubStatusSource
}

func NewHubHandler(hub HubStatusSource) *HubHandler {
	return &HubHandler{hub: hub}
}

// GetStatus reports connected clients and messages dropped on full buffers
// @Summary Websocket hub status
// @Tags Feed
// @Produce json
// @Success 200 {object} ws.Status
// @Router /hub/status [get]
func (h *HubHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Status())
}
