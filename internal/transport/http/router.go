package http

import (
	"net/http"

	"github.com/go-auth-api/internal/application/auth"
	"github.com/go-auth-api/internal/config"
	"github.com/go-auth-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-auth-api/internal/infrastructure/jwt"
	redisinfra "github.com/go-auth-api/internal/infrastructure/redis"
	"github.com/go-auth-api/internal/infrastructure/smtp"
	"github.com/go-auth-api/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    *dynamo.UserRepo
	TokenRepo   *dynamo.TokenRepo
	Sessions    *redisinfra.SessionCache
	JWTProvider *jwtinfra.Provider
	Mailer      smtp.Mailer
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:   deps.UserRepo,
		TokenRepo:  deps.TokenRepo,
		Sessions:   deps.Sessions,
		Codec:      deps.JWTProvider,
		Mailer:     deps.Mailer,
		BaseURL:    cfg.BaseURL,
		BcryptCost: cfg.BcryptCost,
	})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	pageH := handler.NewPageHandler()

	authMw := appmiddleware.Auth(deps.JWTProvider, deps.Sessions)

	r.Get("/health-check/{action}", healthH.Ping)

	// Link landing pages from verification/reset emails.
	r.Get("/confirm", pageH.Confirm)
	r.Get("/reset", pageH.Reset)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authH.Signup)
		r.Post("/signup/confirm", authH.Confirm)
		r.Post("/signup/resend", authH.Resend)
		r.Post("/login", authH.Login)
		r.Post("/logout", authH.Logout)
		r.Post("/reset", authH.Reset)
		r.Post("/change_password", authH.ChangePassword)

		r.With(authMw).Get("/user_info", authH.UserInfo)
	})

	return r
}
