package api

import (
	"net/http"
	"time"

	"github.com/mehrbod2002/copysignal/internal/middleware"
	"github.com/mehrbod2002/copysignal/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

type Dependencies struct {
	Prices       service.PriceService
	CopySettings service.CopySettingsService
	Portfolio    service.PortfolioService
	Feed         FeedStatusSource
	Hub          HubStatusSource
	Verifier     middleware.TokenVerifier
	WebSocket    gin.HandlerFunc
	Logger       *zap.Logger
}

func SetupRoutes(r *gin.Engine, deps Dependencies) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	priceHandler := NewPriceHandler(deps.Prices)
	feedHandler := NewFeedHandler(deps.Feed)
	hubHandler := NewHubHandler(deps.Hub)
	copyTradeHandler := NewCopyTradeHandler(deps.CopySettings, deps.Portfolio, deps.Logger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", deps.WebSocket)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/prices", priceHandler.GetPrices)
		v1.GET("/prices/status", priceHandler.GetStatus)
		v1.GET("/prices/:symbol", priceHandler.GetPrice)
		v1.GET("/feed/status", feedHandler.GetStatus)
		v1.GET("/hub/status", hubHandler.GetStatus)

		user := v1.Group("/").Use(middleware.UserAuthMiddleware(deps.Verifier))
		{
			user.POST("/copy-trades", copyTradeHandler.Follow)
			user.GET("/copy-trades", copyTradeHandler.List)
			user.PUT("/copy-trades/:traderId", copyTradeHandler.UpdateSettings)
			user.DELETE("/copy-trades/:traderId", copyTradeHandler.Unfollow)
			user.GET("/portfolio", copyTradeHandler.GetPortfolio)
		}
	}
}
