package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(apiHandler *APIHandler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Get("/health", apiHandler.HealthHandler)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", apiHandler.LoginHandler)
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/logout", apiHandler.LogoutHandler)
		r.With(apiHandler.SessionAuth).Get("/session", apiHandler.SessionHandler)
	})

	// Chat routes accept anonymous callers; a supplied token is enforced.
	r.Group(func(r chi.Router) {
		r.Use(apiHandler.OptionalAuth)

		r.Post("/chat", apiHandler.PostChatHandler)
		r.Get("/chat", apiHandler.GetChatHandler)
		r.Post("/generate_avatar", apiHandler.GenerateAvatarHandler)
	})

	return r
}
