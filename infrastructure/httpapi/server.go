package httpapi

import (
	"bandmate/auth"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes wires the full surface: public auth endpoints, the protected API,
// the websocket upgrade, and the admin-only debug stats endpoint.
func (h *Handler) Routes(authMW *auth.Middleware, serveWS http.HandlerFunc) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMW.Handle)

		r.Get("/ws", serveWS)

		r.Route("/api/conversations", func(r chi.Router) {
			r.Post("/", h.CreateConversation)
			r.Get("/", h.ListConversations)
			r.Route("/{conversationID}", func(r chi.Router) {
				r.Delete("/", h.DeleteConversation)
				r.Post("/participants", h.AddParticipant)
				r.Delete("/participants/{userID}", h.RemoveParticipant)
				r.Get("/messages", h.ListMessages)
				r.Get("/messages/search", h.SearchMessages)
			})
		})

		r.Route("/api/messages", func(r chi.Router) {
			r.Post("/", h.SendMessage)
			r.Post("/{messageID}/read", h.MarkRead)
			r.Patch("/{messageID}", h.EditMessage)
			r.Delete("/{messageID}", h.DeleteMessage)
		})

		r.Get("/debug/stats", h.Stats)
	})

	return r
}
