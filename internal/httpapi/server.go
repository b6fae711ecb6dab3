// Package httpapi exposes the ledger, payroll, accrual and game operations over HTTP for the
// command layer and operator tooling.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/internal/serverconfig"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/accrual"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/gambling"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/payroll"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Services bundles the domain services the router dispatches to.
type Services struct {
	Ledger    *ledger.Service
	Transfers *ledger.TransferService
	Payroll   *payroll.Service
	Accrual   *accrual.Tracker
	Gambling  *gambling.Engine
	Config    *serverconfig.Registry
}

func (services Services) validate() error {
	switch {
	case services.Ledger == nil:
		return fmt.Errorf("%w: ledger service is nil", ledger.ErrInvalidServiceConfig)
	case services.Transfers == nil:
		return fmt.Errorf("%w: transfer service is nil", ledger.ErrInvalidServiceConfig)
	case services.Payroll == nil:
		return fmt.Errorf("%w: payroll service is nil", ledger.ErrInvalidServiceConfig)
	case services.Accrual == nil:
		return fmt.Errorf("%w: accrual tracker is nil", ledger.ErrInvalidServiceConfig)
	case services.Gambling == nil:
		return fmt.Errorf("%w: gambling engine is nil", ledger.ErrInvalidServiceConfig)
	case services.Config == nil:
		return fmt.Errorf("%w: config registry is nil", ledger.ErrInvalidServiceConfig)
	}
	return nil
}

// RouterConfig carries the transport settings of NewRouter.
type RouterConfig struct {
	AllowedOrigins []string
	Authenticator  *Authenticator
	Logger         *zap.Logger
}

// NewRouter builds the gin engine serving every route.
func NewRouter(cfg RouterConfig, services Services) (*gin.Engine, error) {
	if err := services.validate(); err != nil {
		return nil, err
	}
	if cfg.Authenticator == nil {
		return nil, fmt.Errorf("%w: authenticator is nil", ledger.ErrInvalidServiceConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{logger: logger, services: services}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "Origin", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(cfg.Authenticator.middleware())
	handler.register(api)
	return router, nil
}

// Run serves handler on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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
