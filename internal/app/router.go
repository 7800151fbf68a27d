package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/poofware/verification-service/internal/config"
	"github.com/poofware/verification-service/internal/controllers"
	"github.com/poofware/verification-service/internal/metrics"
	"github.com/poofware/verification-service/internal/middleware"
	"github.com/poofware/verification-service/internal/repositories"
	"github.com/poofware/verification-service/internal/routes"
	"github.com/poofware/verification-service/internal/services"
)

// Services is the wired service graph behind the HTTP handlers.
type Services struct {
	Dispatcher       services.VerificationDispatcherService
	Provider         services.LocalIdentityProvider
	TokenCleanup     services.TokenCleanupService
	RateLimitCleanup services.RateLimitCleanupService
}

// NewServices builds repositories and services on db.
func NewServices(db repositories.DB, cfg *config.Config, m *metrics.Metrics) *Services {
	//----------------------------------------------------------------------
	// Repositories
	//----------------------------------------------------------------------
	codeRepo := repositories.NewVerificationCodeRepository(db)
	profileRepo := repositories.NewProfileRepository(db)
	directoryRepo := repositories.NewDirectoryRepository(db)
	accountRepo := repositories.NewAccountRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)
	rateLimitRepo := repositories.NewRateLimitRepository(db)

	//----------------------------------------------------------------------
	// Services
	//----------------------------------------------------------------------
	rateLimiter := services.NewRateLimiterService(rateLimitRepo, cfg)
	notifier := services.NewNotifier(cfg)
	jwtService := services.NewJWTService(cfg, tokenRepo)
	provider := services.NewLocalIdentityProvider(accountRepo, jwtService, cfg)

	ledger := services.NewCodeLedgerService(codeRepo, notifier, rateLimiter, cfg, m)
	resolver := services.NewIdentityResolverService(profileRepo, directoryRepo, provider, cfg, m)

	return &Services{
		Dispatcher:       services.NewVerificationDispatcherService(ledger, resolver, m),
		Provider:         provider,
		TokenCleanup:     services.NewTokenCleanupService(tokenRepo),
		RateLimitCleanup: services.NewRateLimitCleanupService(rateLimitRepo),
	}
}

// NewRouter mounts every endpoint and wraps the router in CORS handling.
func NewRouter(cfg *config.Config, svcs *Services, db controllers.Pinger, m *metrics.Metrics) http.Handler {
	healthController := controllers.NewHealthController(db)
	verificationController := controllers.NewVerificationController(svcs.Dispatcher)
	tokenController := controllers.NewTokenController(svcs.Provider)

	router := mux.NewRouter()

	// Health
	router.HandleFunc(routes.Health, healthController.HealthCheckHandler).Methods(http.MethodGet)

	// Metrics
	if m != nil {
		router.Handle(routes.Metrics, m.Handler()).Methods(http.MethodGet)
	}

	// Public
	router.HandleFunc(routes.TokenRefresh, tokenController.RefreshTokenHandler).Methods(http.MethodPost)

	// Optionally protected: a valid bearer token supplies the caller's id
	optional := router.NewRoute().Subrouter()
	optional.Use(middleware.OptionalAuthMiddleware(cfg.RSAPublicKey))
	optional.HandleFunc(routes.PhoneVerification, verificationController.PhoneVerificationHandler).Methods(http.MethodPost)

	co := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
	})
	return co.Handler(router)
}

// Handler wires the full service graph on the application's pool.
func (a *App) Handler() (http.Handler, *Services) {
	svcs := NewServices(a.DB, a.Config, a.Metrics)
	return NewRouter(a.Config, svcs, a.DB, a.Metrics), svcs
}
