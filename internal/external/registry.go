package external

import (
	"log/slog"
	"net/http"

	"clientdesk/internal/config"
	"clientdesk/internal/types"
)

// ClientRegistry holds every external client the API talks to. It is the
// single place that decides between real and stub vendors.
type ClientRegistry struct {
	Processor PaymentProcessor
}

// NewClientRegistry builds the registry. Local and test-mode configurations
// get an in-memory StubProcessor; everything else talks to Stripe.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.IsLocal() {
		logger.Info("initializing external clients in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		return newStubRegistry(cfg, logger), nil
	}

	logger.Info("initializing external clients in PRODUCTION mode",
		"environment", cfg.Environment,
	)
	return newProductionRegistry(cfg, logger), nil
}

func newStubRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")
	return &ClientRegistry{
		Processor: NewStubProcessor(stubLogger, stubCatalog(cfg.Billing)...),
	}
}

// stubCatalog gives the configured prices plausible amounts so local proration
// previews have something to compare.
func stubCatalog(b config.BillingConfig) []types.ProcessorPrice {
	currency := b.DefaultCurrency
	if currency == "" {
		currency = "usd"
	}
	return []types.ProcessorPrice{
		{ID: b.PriceProfessionalMonthly, Currency: currency, UnitAmount: 2900, Recurring: true, Interval: types.IntervalMonthly},
		{ID: b.PriceProfessionalAnnual, Currency: currency, UnitAmount: 29000, Recurring: true, Interval: types.IntervalAnnual},
		{ID: b.PricePremiumMonthly, Currency: currency, UnitAmount: 4900, Recurring: true, Interval: types.IntervalMonthly},
		{ID: b.PricePremiumAnnual, Currency: currency, UnitAmount: 49000, Recurring: true, Interval: types.IntervalAnnual},
	}
}

func newProductionRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	httpClient := &http.Client{Timeout: cfg.Billing.StripeTimeout}
	return &ClientRegistry{
		Processor: NewStripeClient(httpClient, StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			BaseURL:   cfg.Billing.StripeAPIBase,
			Logger:    logger.With("client", "stripe"),
		}),
	}
}
