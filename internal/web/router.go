package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/teddyfriends/loyalty/internal/handlers"
	"github.com/teddyfriends/loyalty/internal/services"
)

type Deps struct {
	Service     *services.Service
	DB          *gorm.DB
	Inbox       handlers.Inbox
	Broadcaster handlers.Broadcaster // nil leaves POST /api/broadcasts unrouted

	StaffKey       string
	WebhookSecret  string
	AllowedOrigins []string
}

func Router(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(Tracing)

	svc := d.Service

	// Public
	r.Get("/healthz", handlers.Health(d.DB))
	r.Post("/whatsapp/webhook", handlers.WhatsAppWebhook(d.Inbox, d.WebhookSecret))
	r.Get("/qr/family/{familyID}.png", handlers.FamilyQRPNG(svc))
	r.Get("/qr/voucher/{voucherID}.png", handlers.VoucherQRPNG(svc))

	// Staff API (desk app + admin dashboard)
	r.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Staff-Key", "X-Staff-ID"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		api.Use(handlers.RequireStaff(d.StaffKey))

		// Families
		api.Post("/families", handlers.CreateFamily(svc))
		api.Get("/families/by-code/{clientCode}", handlers.GetFamilyByClientCode(svc))
		api.Get("/families/{id}", handlers.GetFamily(svc))
		api.Get("/families/{id}/visits", handlers.FamilyVisits(svc))
		api.Put("/families/{id}/consent", handlers.SetMarketingConsent(svc))
		api.Get("/families/{id}/subscriptions", handlers.FamilySubscriptions(svc))
		api.Post("/families/{id}/subscriptions", handlers.Subscribe(svc))
		api.Delete("/families/{id}/subscriptions/{topic}", handlers.Unsubscribe(svc))

		// Visits
		api.Post("/visits/issue-code", handlers.IssueCode(svc))
		api.Post("/visits/confirm", handlers.ConfirmVisit(svc))
		api.Get("/visits/codes/stats", handlers.CodesStats(svc))
		api.Get("/visits/codes/{familyID}", handlers.ActiveCodes(svc))
		api.Get("/visits/stats", handlers.VisitStats(svc))

		// Loyalty & vouchers
		api.Get("/loyalty/status/{familyID}", handlers.LoyaltyStatus(svc))
		api.Get("/loyalty/stats", handlers.LoyaltyStats(svc))
		api.Post("/loyalty/voucher/generate", handlers.GenerateVoucher(svc))
		api.Post("/loyalty/voucher/redeem", handlers.RedeemVoucher(svc))
		api.Post("/vouchers/redeem-qr", handlers.RedeemVoucherQR(svc))
		api.Get("/vouchers/stats", handlers.VoucherStats(svc))

		// Subscriptions & broadcasts
		api.Get("/subscriptions/stats", handlers.SubscriptionStats(svc))
		api.Get("/subscriptions/{topic}/subscribers", handlers.Subscribers(svc))
		api.Get("/broadcasts", handlers.ListBroadcasts(svc))
		api.Get("/broadcasts/stats", handlers.BroadcastStats(svc))
		if d.Broadcaster != nil {
			api.Post("/broadcasts", handlers.SendBroadcast(d.Broadcaster))
		}

		// Maintenance (also run by the sweeper)
		api.Post("/maintenance/cleanup-codes", handlers.CleanupCodes(svc))
		api.Post("/maintenance/expire-vouchers", handlers.ExpireVouchers(svc))
	})

	return r
}
