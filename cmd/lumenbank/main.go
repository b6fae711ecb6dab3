package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/internal/audit"
	"github.com/MarkoPoloResearchLab/lumenbank/internal/config"
	"github.com/MarkoPoloResearchLab/lumenbank/internal/httpapi"
	"github.com/MarkoPoloResearchLab/lumenbank/internal/presence"
	"github.com/MarkoPoloResearchLab/lumenbank/internal/serverconfig"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/accrual"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/gambling"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/payroll"
	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	flagDatabaseURL       = "database-url"
	flagStoreDriver       = "store-driver"
	flagListenAddr        = "listen-addr"
	flagJWTSigningKey     = "jwt-signing-key"
	flagJWTIssuer         = "jwt-issuer"
	flagAllowedOrigins    = "allowed-origins"
	flagDiscordToken      = "discord-token"
	flagRecoveryDelay     = "recovery-delay"
	flagRetryAttempts     = "retry-attempts"
	flagRetryBaseDelay    = "retry-base-delay"
	flagTransferMaxAmount = "transfer-max-amount"
	flagLogDev            = "log-dev"
	envPrefix             = "LUMENBANK"
)

var configFlags = []string{
	flagDatabaseURL,
	flagStoreDriver,
	flagListenAddr,
	flagJWTSigningKey,
	flagJWTIssuer,
	flagAllowedOrigins,
	flagDiscordToken,
	flagRecoveryDelay,
	flagRetryAttempts,
	flagRetryBaseDelay,
	flagTransferMaxAmount,
	flagLogDev,
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lumenbank: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "lumenbank",
		Short:         "Community currency ledger with presence rewards, payroll and games",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, "", "sqlite path, sqlite:// or postgres:// URL")
	cmd.Flags().String(flagStoreDriver, config.StoreDriverGorm, "store implementation: gorm or pgx (postgres only)")
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagJWTSigningKey, "", "HS256 key for bearer tokens (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected token issuer")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagDiscordToken, "", "Discord bot token; presence tracking is off without it")
	cmd.Flags().Duration(flagRecoveryDelay, 0, "wait before settling sessions left open by a previous run")
	cmd.Flags().Int(flagRetryAttempts, 0, "attempts per unit of work on store conflicts")
	cmd.Flags().Duration(flagRetryBaseDelay, 0, "base backoff between conflict retries")
	cmd.Flags().Int64(flagTransferMaxAmount, 0, "largest single transfer")
	cmd.Flags().Bool(flagLogDev, false, "human readable development logging")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range configFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.StoreDriver = strings.TrimSpace(v.GetString(flagStoreDriver))
	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.JWTSigningKey = v.GetString(flagJWTSigningKey)
	cfg.JWTIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.AllowedOrigins = config.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.DiscordToken = strings.TrimSpace(v.GetString(flagDiscordToken))
	cfg.RecoveryDelay = v.GetDuration(flagRecoveryDelay)
	cfg.RetryAttempts = v.GetInt(flagRetryAttempts)
	cfg.RetryBaseDelay = v.GetDuration(flagRetryBaseDelay)
	cfg.TransferMaxAmount = v.GetInt64(flagTransferMaxAmount)
	cfg.LogDev = v.GetBool(flagLogDev)

	return cfg.Validate()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.LogDev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}
	defer func() {
		if closeErr := cleanup(); closeErr != nil {
			logger.Warn("store close failed", zap.Error(closeErr))
		}
	}()

	registry, err := serverconfig.NewRegistry(store, serverconfig.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := registry.Reload(ctx); err != nil {
		return err
	}

	services, err := newServices(store, registry, cfg, audit.NewZapLogger(logger))
	if err != nil {
		return err
	}
	authenticator, err := httpapi.NewAuthenticator([]byte(cfg.JWTSigningKey), cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("authenticator init: %w", err)
	}
	router, err := httpapi.NewRouter(httpapi.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Authenticator:  authenticator,
		Logger:         logger,
	}, services)
	if err != nil {
		return fmt.Errorf("router init: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpapi.Run(groupCtx, cfg.ListenAddr, router, logger)
	})
	group.Go(func() error {
		return every(groupCtx, cfg.ArenaSweepInterval, func() {
			if removed := services.Gambling.SweepArenas(time.Now()); removed > 0 {
				logger.Debug("arena sweep", zap.Int("removed", removed))
			}
		})
	})
	group.Go(func() error {
		return every(groupCtx, cfg.ConfigReloadInterval, func() {
			if reloadErr := registry.Reload(groupCtx); reloadErr != nil {
				logger.Warn("server config reload failed", zap.Error(reloadErr))
			}
		})
	})
	if cfg.DiscordEnabled() {
		group.Go(func() error {
			return runPresence(groupCtx, cfg, services.Accrual, registry, logger)
		})
	} else {
		logger.Info("discord token not set; presence sessions are driven through the http api only")
	}
	return group.Wait()
}

func newServices(store ledger.Store, registry *serverconfig.Registry, cfg config.Config, auditLogger *audit.ZapLogger) (httpapi.Services, error) {
	clock := func() int64 { return time.Now().UTC().Unix() }
	retryPolicy := cfg.RetryPolicy()

	ledgerService, err := ledger.NewService(store, clock,
		ledger.WithOperationLogger(auditLogger),
		ledger.WithRetryPolicy(retryPolicy),
	)
	if err != nil {
		return httpapi.Services{}, fmt.Errorf("ledger service init: %w", err)
	}
	transfers, err := ledger.NewTransferService(ledgerService,
		ledger.WithTransferLimit(cfg.TransferMaxAmount),
		ledger.WithDisallowedReceivers(registry.TransferBlocked),
		ledger.WithTransferNotifier(auditLogger),
	)
	if err != nil {
		return httpapi.Services{}, fmt.Errorf("transfer service init: %w", err)
	}
	payrollService, err := payroll.NewService(store, clock,
		payroll.WithOperationLogger(auditLogger),
		payroll.WithRetryPolicy(retryPolicy),
	)
	if err != nil {
		return httpapi.Services{}, fmt.Errorf("payroll service init: %w", err)
	}
	tracker, err := accrual.NewTracker(store, clock,
		accrual.WithRateFunc(registry.RewardPerMinute),
		accrual.WithRecoveryDelay(cfg.RecoveryDelay),
		accrual.WithSettlementListener(auditLogger),
		accrual.WithOperationLogger(auditLogger),
		accrual.WithRetryPolicy(retryPolicy),
	)
	if err != nil {
		return httpapi.Services{}, fmt.Errorf("accrual tracker init: %w", err)
	}
	random, err := gambling.NewRandomSource()
	if err != nil {
		return httpapi.Services{}, fmt.Errorf("random source init: %w", err)
	}
	engine, err := gambling.NewEngine(store, random,
		gambling.WithModeFunc(registry.SlotMode),
		gambling.WithSponsorFunc(registry.JackpotSponsor),
		gambling.WithOperationLogger(auditLogger),
		gambling.WithRetryPolicy(retryPolicy),
	)
	if err != nil {
		return httpapi.Services{}, fmt.Errorf("gambling engine init: %w", err)
	}
	return httpapi.Services{
		Ledger:    ledgerService,
		Transfers: transfers,
		Payroll:   payrollService,
		Accrual:   tracker,
		Gambling:  engine,
		Config:    registry,
	}, nil
}

// runPresence connects to Discord, settles sessions orphaned by the previous run and then follows
// voice-state updates until ctx ends.
func runPresence(ctx context.Context, cfg config.Config, tracker *accrual.Tracker, registry *serverconfig.Registry, logger *zap.Logger) error {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	session.State.TrackVoice = true

	monitor, err := presence.NewMonitor(tracker, registry, session.State, logger.Named("presence"))
	if err != nil {
		return err
	}
	session.AddHandler(monitor.OnVoiceStateUpdate)
	if err := session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn("discord close failed", zap.Error(closeErr))
		}
	}()

	report, err := tracker.RecoverPending(ctx, monitor)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("presence recovery failed", zap.Error(err))
	}
	logger.Info("presence recovery finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("settled", report.Settled),
		zap.Int("left_open", report.LeftOpen),
		zap.Int("failed", report.Failed),
		zap.Int64("rewarded", report.Rewarded),
	)
	if ctx.Err() == nil {
		opened, resumeErr := monitor.ResumeActive(ctx)
		if resumeErr != nil {
			logger.Warn("resuming active members failed", zap.Error(resumeErr))
		}
		logger.Info("presence tracking live", zap.Int("resumed", opened))
	}

	<-ctx.Done()
	return nil
}

// every runs fn each interval until ctx ends.
func every(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}
