package api

import (
	"errors"
	"net/http"

	"github.com/mehrbod2002/copysignal/internal/middleware"
	"github.com/mehrbod2002/copysignal/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CopyTradeRequest struct {
	TraderID string `json:"trader_id" binding:"required" example:"trader-42"`
	service.CopyParams
}

type CopyTradeHandler struct {
	copySettings service.CopySettingsService
	portfolio    service.PortfolioService
	logger       *zap.Logger
}

func NewCopyTradeHandler(copySettings service.CopySettingsService, portfolio service.PortfolioService, logger *zap.Logger) *CopyTradeHandler {
	return &CopyTradeHandler{copySettings: copySettings, portfolio: portfolio, logger: logger.Named("api")}
}

func (h *CopyTradeHandler) fail(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyFollowing):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFollowing):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("copy trade request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Follow creates a copy trade subscription
// @Summary Follow a trader
// @Description Allocates funds and risk limits for copying a trader
// @Tags CopyTrading
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param subscription body CopyTradeRequest true "Copy settings"
// @Success 201 {object} models.CopySettings
// @Failure 400 {object} map[string]string "Invalid JSON or parameters"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 409 {object} map[string]string "Already following"
// @Router /copy-trades [post]
func (h *CopyTradeHandler) Follow(c *gin.Context) {
	var req CopyTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	settings, err := h.copySettings.Follow(c.Request.Context(), c.GetString(middleware.UserIDKey), req.TraderID, req.CopyParams)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, settings)
}

// UpdateSettings changes the risk parameters of an active subscription
// @Summary Update copy settings
// @Tags CopyTrading
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param traderId path string true "Trader ID"
// @Param settings body service.CopyParams true "New settings"
// @Success 200 {object} models.CopySettings
// @Failure 400 {object} map[string]string "Invalid JSON or parameters"
// @Failure 404 {object} map[string]string "Not following"
// @Router /copy-trades/{traderId} [put]
func (h *CopyTradeHandler) UpdateSettings(c *gin.Context) {
	var params service.CopyParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	settings, err := h.copySettings.UpdateSettings(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("traderId"), params)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// Unfollow deactivates a subscription
// @Summary Unfollow a trader
// @Tags CopyTrading
// @Produce json
// @Security BearerAuth
// @Param traderId path string true "Trader ID"
// @Success 200 {object} map[string]string "Unfollowed"
// @Failure 404 {object} map[string]string "Not following"
// @Router /copy-trades/{traderId} [delete]
func (h *CopyTradeHandler) Unfollow(c *gin.Context) {
	if err := h.copySettings.Unfollow(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("traderId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Unfollowed"})
}

// @Summary List active copy trade subscriptions
// @Tags CopyTrading
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.CopySettings
// @Router /copy-trades [get]
func (h *CopyTradeHandler) List(c *gin.Context) {
	settings, err := h.copySettings.ListByUser(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// @Summary Get portfolio
// @Description Active settings, open positions, recent copy trades and today's usage
// @Tags CopyTrading
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Portfolio
// @Router /portfolio [get]
func (h *CopyTradeHandler) GetPortfolio(c *gin.Context) {
	p, err := h.portfolio.GetPortfolio(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
