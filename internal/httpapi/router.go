package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/aimbuild/siteauth"
	"github.com/aimbuild/siteauth/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Service is the engine surface the HTTP layer calls. *siteauth.Engine
// implements it.
type Service interface {
	middleware.Authorizer
	Register(ctx context.Context, in siteauth.RegisterInput) (siteauth.RegisterResult, error)
	Login(ctx context.Context, in siteauth.LoginInput) (siteauth.LoginResult, error)
	VerifyEmail(ctx context.Context, email, token, otp string) (siteauth.VerifyResult, error)
	ResendOTP(ctx context.Context, email string) (siteauth.ChallengeResult, error)
	ForgotPassword(ctx context.Context, email string) (siteauth.ChallengeResult, error)
	ResetPassword(ctx context.Context, email, newPassword, otp string) (siteauth.Account, error)
	ChangePassword(ctx context.Context, accountID, current, next string) (siteauth.Account, error)
	SetInitialPassword(ctx context.Context, accountID, next string) (siteauth.Account, error)
	Refresh(ctx context.Context, refreshToken string) (siteauth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Account(ctx context.Context, id string) (siteauth.Account, error)
	InviteSupervisors(ctx context.Context, managerID string, emails []string) (siteauth.InviteReport, error)
	CreateStaffAccount(ctx context.Context, in siteauth.StaffInput) (siteauth.Account, error)
}

var _ Service = (*siteauth.Engine)(nil)

// Options configures NewRouter.
type Options struct {
	Service Service
	Logger  *zap.Logger
	// Metrics serves GET /metrics when set.
	Metrics     http.Handler
	CORSOrigins []string
	// TrustProxy reads the client IP from proxy headers. Only enable it
	// behind a proxy that overwrites them.
	TrustProxy bool
	// SecureCookies marks the refresh cookie Secure.
	SecureCookies    bool
	RefreshCookieTTL time.Duration
}

type handler struct {
	service          Service
	logger           *zap.Logger
	secureCookies    bool
	refreshCookieTTL time.Duration
}

// NewRouter registers the routes and middleware stack.
func NewRouter(opts Options) http.Handler {
	h := &handler{
		service:          opts.Service,
		logger:           opts.Logger,
		secureCookies:    opts.SecureCookies,
		refreshCookieTTL: opts.RefreshCookieTTL,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.refreshCookieTTL <= 0 {
		h.refreshCookieTTL = 24 * time.Hour
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(requestContext)
	r.Use(h.recoverer)
	r.Use(h.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: len(opts.CORSOrigins) > 0,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, "ok", nil)
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/verify-email", h.verifyEmail)
		r.Post("/resend-otp", h.resendOTP)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)
		r.Post("/logout", h.logout)
		r.Post("/refresh-auth", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Require(h.service))
			r.Post("/change-password", h.changePassword)
			r.Post("/set-initial-password", h.setInitialPassword)
			r.Get("/me", h.me)
		})
	})

	r.Route("/v1/users", func(r chi.Router) {
		r.With(middleware.Require(h.service, siteauth.RoleProjectManager)).Post("/invite-supervisors", h.inviteSupervisors)
		r.With(middleware.Require(h.service, siteauth.RoleSuperAdmin)).Post("/admins", h.createStaff)
	})

	return r
}
