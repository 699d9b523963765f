package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nafsiapp/nafsi-backend/api/controllers"
	"github.com/nafsiapp/nafsi-backend/api/middleware"
	"github.com/nafsiapp/nafsi-backend/internal/appointments"
	"github.com/nafsiapp/nafsi-backend/internal/auth"
	"github.com/nafsiapp/nafsi-backend/internal/charges"
	"github.com/nafsiapp/nafsi-backend/internal/chat"
	"github.com/nafsiapp/nafsi-backend/internal/notifications"
	"github.com/nafsiapp/nafsi-backend/internal/plans"
	"github.com/nafsiapp/nafsi-backend/internal/wallets"
	"github.com/nafsiapp/nafsi-backend/pkg/auth/session"
	"github.com/nafsiapp/nafsi-backend/pkg/config"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
	"github.com/nafsiapp/nafsi-backend/pkg/metrics"
)

// Deps bundles everything the router mounts.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Metrics       *metrics.HTTPMetrics
	Sessions      session.AccessSessionChecker
	Pingers       map[string]controllers.Pinger
	Auth          auth.Service
	Appointments  appointments.Service
	Wallets       wallets.Service
	Plans         plans.Service
	Chat          chat.Service
	Charges       charges.Service
	Notifications notifications.Service
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Pingers))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(d.Auth, logg))
		r.Post("/login", controllers.AuthLogin(d.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(d.Auth, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
			r.Post("/logout", controllers.AuthLogout(d.Auth, logg))
			r.Get("/me", controllers.AuthMe(d.Auth, logg))
			r.Put("/fcm-token", controllers.AuthUpdateFCMToken(d.Auth, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", controllers.PlanList(d.Plans, logg))
			r.Get("/{planId}", controllers.PlanDetail(d.Plans, logg))
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", controllers.AppointmentRequest(d.Appointments, logg))
			r.Get("/", controllers.AppointmentList(d.Appointments, logg))
			r.Get("/{appointmentId}", controllers.AppointmentDetail(d.Appointments, logg))
			r.Post("/{appointmentId}/confirm-payment", controllers.AppointmentConfirmPayment(d.Appointments, logg))
			r.Post("/{appointmentId}/cancel", controllers.AppointmentCancel(d.Appointments, logg))
			r.Get("/{appointmentId}/chat", controllers.AppointmentChat(d.Chat, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireProvider(logg))
				r.Post("/{appointmentId}/decision", controllers.AppointmentDecide(d.Appointments, logg))
				r.Post("/{appointmentId}/complete", controllers.AppointmentComplete(d.Appointments, logg))
			})
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletFetch(d.Wallets, logg))
			r.Get("/transactions", controllers.WalletTransactions(d.Wallets, logg))
			r.Get("/transactions/{transactionId}", controllers.WalletTransactionDetail(d.Wallets, logg))
		})

		r.Route("/charges", func(r chi.Router) {
			r.Post("/", controllers.ChargeCreate(d.Charges, logg))
			r.Get("/", controllers.ChargeList(d.Charges, logg))
			r.Get("/{chargeId}", controllers.ChargeDetail(d.Charges, logg))
		})

		r.Route("/chat/groups", func(r chi.Router) {
			r.Get("/", controllers.ChatGroups(d.Chat, logg))
			r.Get("/{groupId}", controllers.ChatGroupDetail(d.Chat, logg))
			r.Get("/{groupId}/participants", controllers.ChatParticipants(d.Chat, logg))
			r.Get("/{groupId}/messages", controllers.ChatMessages(d.Chat, logg))
			r.Post("/{groupId}/messages", controllers.ChatSendMessage(d.Chat, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(d.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(d.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Route("/plans", func(r chi.Router) {
			r.Post("/", controllers.PlanCreate(d.Plans, logg))
			r.Put("/{planId}", controllers.PlanUpdate(d.Plans, logg))
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/{appointmentId}/transactions", controllers.AdminAppointmentTransactions(d.Wallets, logg))
			r.Post("/{appointmentId}/reverse-payment", controllers.AdminReversePayment(d.Wallets, logg))
		})

		r.Route("/charges", func(r chi.Router) {
			r.Get("/pending", controllers.AdminChargePending(d.Charges, logg))
			r.Post("/{chargeId}/approve", controllers.AdminChargeApprove(d.Charges, logg))
			r.Post("/{chargeId}/reject", controllers.AdminChargeReject(d.Charges, logg))
		})

		r.Route("/chat/groups", func(r chi.Router) {
			r.Post("/community", controllers.ChatCreateCommunityGroup(d.Chat, logg))
			r.Post("/{groupId}/archive", controllers.ChatArchiveGroup(d.Chat, logg))
			r.Post("/{groupId}/mute", controllers.ChatMuteParticipant(d.Chat, logg))
		})
	})

	return r
}
