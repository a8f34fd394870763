package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mehrbod2002/copysignal/docs"
	"github.com/mehrbod2002/copysignal/interfaces"
	"github.com/mehrbod2002/copysignal/internal/api"
	"github.com/mehrbod2002/copysignal/internal/cache"
	"github.com/mehrbod2002/copysignal/internal/config"
	"github.com/mehrbod2002/copysignal/internal/kafka"
	"github.com/mehrbod2002/copysignal/internal/logger"
	"github.com/mehrbod2002/copysignal/internal/middleware"
	"github.com/mehrbod2002/copysignal/internal/models"
	"github.com/mehrbod2002/copysignal/internal/provider"
	"github.com/mehrbod2002/copysignal/internal/repository"
	"github.com/mehrbod2002/copysignal/internal/service"
	"github.com/mehrbod2002/copysignal/internal/socket"
	"github.com/mehrbod2002/copysignal/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const signalQueueSize = 1024

type stores struct {
	settings repository.CopySettingsRepository
	trades   repository.CopyTradeRepository
	usage    repository.UsageLedger
	closers  []func(context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	st, err := openStores(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, c := range st.closers {
			if err := c(closeCtx); err != nil {
				lg.Warn("close store", zap.Error(err))
			}
		}
	}()

	prices, err := buildPriceService(cfg, lg)
	if err != nil {
		return err
	}

	var executor interfaces.ExecutionService
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewExecutionPublisher(cfg.KafkaBrokers, cfg.KafkaExecutionTopic)
		defer publisher.Close()
		executor = publisher
		lg.Info("execution via kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaExecutionTopic))
	} else {
		executor = service.NewPaperExecutionService(lg)
		lg.Warn("no kafka brokers configured, using paper execution")
	}

	positions := repository.NewPositionBook()
	verifier := middleware.NewJWTVerifier(cfg.JWTSecret)
	traders := service.NewTraderService(st.settings)
	portfolio := service.NewPortfolioService(st.settings, st.trades, st.usage, positions)

	hub := ws.NewHub(ws.Options{
		SendBuffer:     cfg.Hub.SendBuffer,
		MaxMessageSize: cfg.Hub.MaxMessageSize,
		PongWait:       cfg.Hub.PongWait,
	}, ws.Deps{
		Verifier:  verifier,
		Portfolio: portfolio,
		Traders:   traders,
		Logger:    lg,
	})

	header := http.Header{}
	if cfg.Feed.APIKey != "" {
		header.Set("X-API-Key", cfg.Feed.APIKey)
	}
	feed := socket.NewFeedClient(&socket.WSDialer{
		URL:     cfg.Feed.URL,
		Header:  header,
		Timeout: cfg.Feed.DialTimeout,
	}, socket.Config{
		Policy: socket.Policy{
			BaseDelay:   cfg.Feed.ReconnectBase,
			MaxDelay:    cfg.Feed.ReconnectMax,
			MaxAttempts: cfg.Feed.MaxAttempts,
		},
		HeartbeatInterval: cfg.Feed.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Feed.HeartbeatTimeout,
	}, lg)
	hub.SetUpstream(feed)

	copySettings := service.NewCopySettingsService(st.settings, feed, lg)
	signals := service.NewSignalService(service.SignalDeps{
		Settings:  st.settings,
		Trades:    st.trades,
		Usage:     st.usage,
		Positions: positions,
		Prices:    prices,
		Executor:  executor,
		Notifier:  hub,
		Logger:    lg,
	})

	queue := make(chan models.TradeSignal, signalQueueSize)
	feed.OnTradeUpdate(func(sig models.TradeSignal) {
		hub.BroadcastTradeUpdate(sig)
		select {
		case queue <- sig:
		default:
			lg.Warn("signal queue full, dropping signal", zap.String("trader_id", sig.TraderID), zap.String("symbol", sig.Symbol))
		}
	})
	feed.OnTraderPerformance(func(perf models.TraderPerformance) {
		traders.RecordPerformance(perf)
		hub.BroadcastTraderPerformance(perf)
	})
	feed.OnMarketData(func(update models.MarketUpdate) {
		hub.BroadcastMarketData(update)
	})
	feed.OnPositionUpdate(func(update models.PositionUpdate) {
		hub.BroadcastPositionUpdate(update)
	})
	feed.OnConnect(func(ctx context.Context) {
		ids, err := st.settings.ListActiveTraderIDs(ctx)
		if err != nil {
			lg.Warn("list followed traders", zap.Error(err))
			return
		}
		for _, id := range ids {
			if err := feed.SubscribeToTrader(id); err != nil {
				lg.Debug("subscribe followed trader", zap.String("trader_id", id), zap.Error(err))
			}
		}
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(lg.Named("http")))
	api.SetupRoutes(r, api.Dependencies{
		Prices:       prices,
		CopySettings: copySettings,
		Portfolio:    portfolio,
		Feed:         feed,
		Hub:          hub,
		Verifier:     verifier,
		WebSocket:    hub.HandleConnection,
		Logger:       lg,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("http server listening",
			zap.String("addr", srv.Addr),
			zap.String("websocket", cfg.BaseURL+"/ws"),
			zap.String("swagger", cfg.BaseURL+"/swagger/index.html"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := feed.Run(gctx)
		if errors.Is(err, socket.ErrReconnectExhausted) {
			lg.Error("upstream feed gave up reconnecting; serving without live signals", zap.Error(err))
			return nil
		}
		return err
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-queue:
				summary, err := signals.ProcessTradeSignal(gctx, sig)
				if err != nil {
					lg.Warn("process trade signal", zap.String("trader_id", sig.TraderID), zap.Error(err))
					continue
				}
				lg.Info("trade signal processed",
					zap.String("trader_id", sig.TraderID),
					zap.String("symbol", sig.Symbol),
					zap.Int("followers", summary.Followers),
					zap.Int("executed", summary.Executed),
					zap.Int("rejected", summary.Rejected),
					zap.Int("failed", summary.Failed),
				)
			}
		}
	})

	return g.Wait()
}

// openStores uses Mongo and Redis when configured and in-memory stores otherwise.
func openStores(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*stores, error) {
	st := &stores{}

	if cfg.MongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}

		settings := repository.NewCopySettingsRepository(client, cfg.MongoDatabase, "copy_settings")
		if err := settings.EnsureIndexes(pingCtx); err != nil {
			return nil, fmt.Errorf("ensure copy settings indexes: %w", err)
		}
		st.settings = settings
		st.trades = repository.NewCopyTradeRepository(client, cfg.MongoDatabase, "copy_trades")
		st.closers = append(st.closers, client.Disconnect)
		lg.Info("using mongo stores", zap.String("database", cfg.MongoDatabase))
	} else {
		st.settings = repository.NewMemoryCopySettingsRepository()
		st.trades = repository.NewMemoryCopyTradeRepository()
		lg.Warn("MONGO_URI not set, using in-memory stores")
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		st.usage = repository.NewRedisUsageLedger(rdb, "copysignal:usage", 0)
		st.closers = append(st.closers, func(context.Context) error { return rdb.Close() })
		lg.Info("using redis usage ledger", zap.String("addr", cfg.RedisAddr))
	} else {
		st.usage = repository.NewMemoryUsageLedger()
	}

	return st, nil
}

// buildPriceService wires providers in priority order. A provider that
// cannot be configured is skipped; the fallback table always answers.
func buildPriceService(cfg *config.Config, lg *zap.Logger) (service.PriceService, error) {
	pc := cfg.Providers
	providerCfg := func(url, key string) provider.Config {
		return provider.Config{BaseURL: url, APIKey: key, Timeout: pc.Timeout, CacheTTL: pc.CacheTTL}
	}

	var providers []provider.PriceProvider
	if pc.CoinMarketCapKey != "" {
		p, err := provider.NewCoinMarketCap(providerCfg(pc.CoinMarketCapURL, pc.CoinMarketCapKey))
		if err != nil {
			return nil, fmt.Errorf("coinmarketcap provider: %w", err)
		}
		providers = append(providers, p)
	}
	cg, err := provider.NewCoinGecko(providerCfg(pc.CoinGeckoURL, pc.CoinGeckoKey))
	if err != nil {
		return nil, fmt.Errorf("coingecko provider: %w", err)
	}
	providers = append(providers, cg)
	cc, err := provider.NewCryptoCompare(providerCfg(pc.CryptoCompareURL, pc.CryptoCompareKey))
	if err != nil {
		return nil, fmt.Errorf("cryptocompare provider: %w", err)
	}
	providers = append(providers, cc)

	fallback := provider.NewFallback()
	if pc.FallbackTable != "" {
		if fallback, err = provider.LoadFallbackTable(pc.FallbackTable); err != nil {
			return nil, fmt.Errorf("fallback table: %w", err)
		}
	}

	unified, err := cache.New[*models.PriceQuote](1<<20, pc.UnifiedTTL)
	if err != nil {
		return nil, fmt.Errorf("price cache: %w", err)
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	lg.Info("price providers configured", zap.Strings("providers", names))

	return service.NewPriceService(providers, fallback, unified, lg), nil
}
