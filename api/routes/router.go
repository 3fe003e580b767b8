package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promptlens/promptlens-backend/api/controllers"
	webhookcontrollers "github.com/promptlens/promptlens-backend/api/controllers/webhooks"
	"github.com/promptlens/promptlens-backend/api/middleware"
	"github.com/promptlens/promptlens-backend/internal/admin"
	"github.com/promptlens/promptlens-backend/internal/analysis"
	"github.com/promptlens/promptlens-backend/internal/auth"
	"github.com/promptlens/promptlens-backend/internal/payments/razorpay"
	"github.com/promptlens/promptlens-backend/internal/prompts"
	subscriptionsvc "github.com/promptlens/promptlens-backend/internal/subscriptions"
	stripewebhook "github.com/promptlens/promptlens-backend/internal/webhooks/stripe"
	"github.com/promptlens/promptlens-backend/pkg/config"
	"github.com/promptlens/promptlens-backend/pkg/logger"
	"github.com/promptlens/promptlens-backend/pkg/redis"
)

// Params carries everything the router needs. The pinger fields are
// interfaces so tests can wire fakes or leave them nil.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       Pinger
	Redis    *redis.Client
	Registry *prometheus.Registry

	Auth          auth.Service
	Analysis      analysis.Service
	Subscriptions subscriptionsvc.Service
	Prompts       *prompts.Repository
	Payments      razorpay.Service
	Admin         admin.Service
	StripeWebhook *stripewebhook.Service
}

// Pinger is the health-check surface the router expects from stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// Rate limiting is skipped entirely when no redis client is wired.
	limit := func(policy middleware.AuthRateLimitPolicy) func(http.Handler) http.Handler {
		if p.Redis == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.AuthRateLimit(policy, p.Redis, logg)
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	var cache Pinger
	if p.Redis != nil {
		cache = p.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, cache))
	})

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.Stripe(p.StripeWebhook, cfg.Stripe.WebhookSecret, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limit(registerPolicy)).Post("/register", controllers.AuthRegister(p.Auth, logg))
			r.With(limit(loginPolicy)).Post("/login", controllers.AuthLogin(p.Auth, logg))
			r.With(limit(loginPolicy)).Post("/google", controllers.AuthGoogle(p.Auth, logg))
		})

		r.Get("/plans", controllers.PlansList(p.Subscriptions, logg))

		// Anonymous callers are metered by hashed client address; signed-in
		// callers by account.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Post("/analyze", controllers.Analyze(p.Analysis, cfg.Guest.TrustProxy, logg))
			r.Get("/usage", controllers.UsageReport(p.Analysis, cfg.Guest.TrustProxy, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Get("/me", controllers.Me(p.Auth, logg))

			r.Post("/plan", controllers.PlanChange(p.Subscriptions, logg))
			r.Post("/plan/cancel", controllers.PlanCancel(p.Subscriptions, logg))

			r.Route("/prompts", func(r chi.Router) {
				r.Get("/", controllers.PromptsList(p.Prompts, logg))
				r.Post("/", controllers.PromptsCreate(p.Prompts, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/order", controllers.CheckoutOrder(p.Payments, logg))
				r.Post("/verify", controllers.CheckoutVerify(p.Payments, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireStaff(logg))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", controllers.AdminUsersList(p.Admin, logg))
				r.Post("/", controllers.AdminUserCreate(p.Admin, logg))
				r.Get("/{userID}", controllers.AdminUserGet(p.Admin, logg))
				r.Put("/{userID}/role", controllers.AdminUserRole(p.Admin, logg))
				r.Put("/{userID}/status", controllers.AdminUserStatus(p.Admin, logg))
				r.Put("/{userID}/plan", controllers.AdminUserPlan(p.Admin, logg))
			})
			r.Get("/audit", controllers.AdminAuditList(p.Admin, logg))
		})
	})

	return r
}
