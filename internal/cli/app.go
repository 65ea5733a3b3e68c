package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/servetable/servetable/internal/config"
	"github.com/servetable/servetable/internal/guest"
	"github.com/servetable/servetable/internal/otp"
	"github.com/servetable/servetable/internal/payments"
	"github.com/servetable/servetable/internal/ratelimit"
	"github.com/servetable/servetable/internal/server"
	"github.com/servetable/servetable/internal/sms"
)

// stores groups the persistence the services run on. Production wires the
// Postgres stores; tests wire the in-memory ones.
type stores struct {
	Sessions   guest.Store
	Challenges otp.ChallengeStore
	Intents    payments.Store
}

func postgresStores(pool *pgxpool.Pool) stores {
	return stores{
		Sessions:   guest.NewPostgresStore(pool),
		Challenges: otp.NewPostgresStore(pool),
		Intents:    payments.NewPostgresStore(pool),
	}
}

// buildDeps constructs the domain services from cfg and returns the routers
// the server mounts.
func buildDeps(ctx context.Context, cfg *config.Config, st stores, db server.Pinger, logger *slog.Logger) (server.Deps, error) {
	tokens := guest.NewTokens(cfg.Guest.JWTSecret)
	guestSvc := guest.NewService(st.Sessions, tokens, cfg.GuestSessionTTL(), logger)

	channel := sms.NewChannel(smsProviderName(cfg), buildSMSProvider(ctx, cfg, logger), time.Duration(cfg.SMS.Timeout)*time.Second, logger)
	engine := otp.NewEngine(otp.Config{
		CodeLength:       cfg.OTP.CodeLength,
		TTL:              cfg.OTPTTL(),
		MaxAttempts:      cfg.OTP.MaxAttempts,
		ResendCooldown:   cfg.OTPResendCooldown(),
		DevEcho:          cfg.OTP.DevEcho,
		AllowedCountries: cfg.OTP.AllowedCountries,
		DefaultRegion:    cfg.OTP.DefaultRegion,
		HashCost:         cfg.OTP.HashCost,
	}, st.Sessions, st.Challenges, channel, logger)

	deps := server.Deps{DB: db}

	var limit func(http.Handler) http.Handler
	if cfg.OTP.RateLimit > 0 {
		limiter := ratelimit.New(cfg.OTP.RateLimit, time.Minute)
		limit = limiter.Middleware
		deps.OnShutdown = append(deps.OnShutdown, limiter.Stop)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return server.Deps{}, err
	}
	paySvc := payments.NewService(registry, st.Intents, st.Sessions, logger)

	deps.Guest = guest.NewHandler(guestSvc, logger)
	deps.OTP = otp.NewHandler(engine, tokens, limit, logger)
	deps.Payments = payments.NewHandler(paySvc, tokens, logger)

	logger.Info("services ready",
		"sms_provider", smsProviderName(cfg),
		"payment_providers", registry.Codes(),
		"otp_rate_limit", cfg.OTP.RateLimit,
	)
	return deps, nil
}

// buildRegistry registers the payment providers enabled in cfg.
func buildRegistry(cfg *config.Config) (*payments.Registry, error) {
	var providers []payments.Provider
	if cfg.Payments.DummyEnabled {
		providers = append(providers, payments.NewDummy(cfg.DummyRedirectBaseURL(), cfg.Payments.DummyWebhookSecret))
	}
	if cfg.Payments.MaibEnabled {
		providers = append(providers, payments.NewMaib(cfg.Payments.MaibWebhookSecret))
	}
	registry, err := payments.NewRegistry(providers...)
	if err != nil {
		return nil, fmt.Errorf("building payment registry: %w", err)
	}
	return registry, nil
}

func smsProviderName(cfg *config.Config) string {
	if cfg.SMS.Provider == "" {
		return "log"
	}
	return cfg.SMS.Provider
}

func buildSMSProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) sms.Provider {
	switch cfg.SMS.Provider {
	case "twilio":
		return sms.NewTwilioProvider(cfg.SMS.TwilioSID, cfg.SMS.TwilioToken, cfg.SMS.TwilioFrom, "")
	case "sns":
		publisher, err := newSNSPublisher(ctx, cfg.SMS.AWSRegion)
		if err != nil {
			logger.Error("failed to create AWS SNS client, falling back to log provider", "error", err)
			return sms.NewLogProvider(logger)
		}
		return sms.NewSNSProvider(publisher)
	case "webhook":
		return sms.NewWebhookProvider(cfg.SMS.WebhookURL, cfg.SMS.WebhookSecret)
	default:
		return sms.NewLogProvider(logger)
	}
}

// ensureJWTSecret fills an empty guest.jwt_secret with a random one and
// returns true when it did. Tokens signed with it die with the process.
func ensureJWTSecret(cfg *config.Config) (bool, error) {
	if cfg.Guest.JWTSecret != "" {
		return false, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return false, fmt.Errorf("generating guest.jwt_secret: %w", err)
	}
	cfg.Guest.JWTSecret = hex.EncodeToString(b)
	return true, nil
}
