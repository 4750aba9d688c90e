package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/avolkhin/courierday-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса рабочего дня курьера.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/courier", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	r.Route("/api/day", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/", h.GetDay)

		r.Post("/packages", h.AddPackage)
		r.Delete("/packages/{id}", h.RemovePackage)
		r.Post("/packages/import", h.ImportManifest)

		r.Post("/scan/start", h.StartScanning)
		r.Post("/scan", h.ScanPackage)
		r.Delete("/scan/{id}", h.RemoveScanned)

		r.Post("/delivery/start", h.StartDelivery)
		r.Post("/delivery/{id}/delivered", h.MarkDelivered)
		r.Post("/delivery/{id}/pending", h.MarkPending)

		r.Post("/pending/return", h.ReturnPending)

		r.Get("/summary", h.GetSummary)
		r.Post("/reset", h.ResetDay)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}
