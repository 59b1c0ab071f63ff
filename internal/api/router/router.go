package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/inving/dispatch/internal/api/respond"
	"github.com/inving/dispatch/internal/auth"
	"github.com/inving/dispatch/internal/customers"
	httpmiddleware "github.com/inving/dispatch/internal/http/middleware"
	"github.com/inving/dispatch/internal/invoices"
	"github.com/inving/dispatch/internal/merchants"
	"github.com/inving/dispatch/internal/scheduler"
	"github.com/inving/dispatch/internal/telegrambot"
	"github.com/inving/dispatch/internal/verification"
	"github.com/inving/dispatch/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	AuthHandler         *auth.Handler
	MerchantHandler     *merchants.Handler
	CustomerHandler     *customers.Handler
	InvoiceHandler      *invoices.Handler
	ScheduleHandler     *scheduler.Handler
	VerificationHandler *verification.Handler
	TelegramWebhook     *telegrambot.Webhook

	TokenStore    *auth.Store
	MerchantStore *merchants.Store

	MetricsHandler http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			respond.OK(w, http.StatusOK, "Hello", nil)
		})
		public.Post("/register", cfg.AuthHandler.Register)
		public.Post("/login", cfg.AuthHandler.Login)
		public.Get("/verify", cfg.VerificationHandler.Verify)
		public.Post("/webhook/telegram", cfg.TelegramWebhook.Handle)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Authenticated endpoints
	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.BearerAuth(cfg.TokenStore))
		private.Use(merchants.ResolveMerchant(cfg.MerchantStore))

		private.Get("/contact-channels", cfg.CustomerHandler.ContactChannels)

		private.Route("/merchant", func(r chi.Router) {
			r.Get("/", cfg.MerchantHandler.List)
			r.Post("/", cfg.MerchantHandler.Create)

			r.Route("/{merchantID}", func(r chi.Router) {
				r.Put("/", cfg.MerchantHandler.Update)
				r.Delete("/", cfg.MerchantHandler.Delete)

				r.Get("/tags", cfg.CustomerHandler.Tags)
				r.Get("/schedule", cfg.ScheduleHandler.List)
				r.Put("/set-schedule", cfg.ScheduleHandler.SetSchedule)

				r.Route("/customer", func(r chi.Router) {
					r.Get("/", cfg.CustomerHandler.List)
					r.Get("/all", cfg.CustomerHandler.List)
					r.Post("/", cfg.CustomerHandler.Create)
					r.Route("/{customerID}", func(r chi.Router) {
						r.Get("/", cfg.CustomerHandler.Get)
						r.Put("/", cfg.CustomerHandler.Update)
						r.Delete("/", cfg.CustomerHandler.Delete)
					})
				})

				r.Route("/invoice", func(r chi.Router) {
					r.Get("/", cfg.InvoiceHandler.List)
					r.Post("/", cfg.InvoiceHandler.Create)
					r.Route("/{invoiceID}", func(r chi.Router) {
						r.Get("/", cfg.InvoiceHandler.Get)
						r.Put("/set-schedule", cfg.ScheduleHandler.SetInvoiceSchedule)
						r.Put("/update-status-schedule", cfg.ScheduleHandler.UpdateInvoiceScheduleStatus)
					})
				})
			})
		})
	})

	return r
}
