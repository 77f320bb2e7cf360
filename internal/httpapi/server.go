package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vcoin-labs/vcoin/pkg/vcoin"
	"go.uber.org/zap"
)

// Services bundles the domain dependencies of the HTTP facade.
type Services struct {
	Ledger  *vcoin.Ledger
	Rewards *vcoin.RewardService
	Staking *vcoin.StakingEngine
	Tiers   vcoin.VerificationTierService
	Store   vcoin.Store
	Economy vcoin.Config
}

// Run boots the HTTP facade and blocks until ctx is done or serving fails.
func Run(ctx context.Context, cfg Config, services Services, logger *zap.Logger) error {
	handler := &httpHandler{
		logger:   logger,
		cfg:      cfg,
		services: services,
	}
	router := NewRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("httpapi listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter assembles the gin engine with middleware and routes.
func NewRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(authMiddleware([]byte(cfg.TokenSigningKey), cfg.TokenIssuer))

	api.POST("/activity", handler.handleActivity)
	api.POST("/transfer", handler.handleTransfer)
	api.GET("/wallet", handler.handleWallet)
	api.GET("/history", handler.handleHistory)
	api.POST("/stakes", handler.handleStake)
	api.POST("/stakes/:id/unstake", handler.handleUnstake)
	api.GET("/stakes", handler.handleStakes)
	api.GET("/tier", handler.handleTier)
	api.GET("/supply", handler.handleSupply)

	return router
}
