package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", handler.Health)
	r.Post("/pay/create", handler.CreatePay)

	r.Route("/flow", func(r chi.Router) {
		r.Post("/confirmation", handler.Confirmation)
		r.Post("/return", handler.Return)
	})

	r.Get("/download/{downloadToken}", handler.Download)

	return &Server{Router: r}
}
