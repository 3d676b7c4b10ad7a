package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/lipa/internal/http/admin"
	"github.com/MrJamesThe3rd/lipa/internal/http/callback"
	"github.com/MrJamesThe3rd/lipa/internal/http/invoice"
	"github.com/MrJamesThe3rd/lipa/internal/http/payment"
)

type Options struct {
	AllowedOrigins []string
	OperatorAuth   func(http.Handler) http.Handler
	Metrics        http.Handler
}

func New(
	paymentsV1 *payment.Handler,
	callbacks *callback.Handler,
	adminV1 *admin.Handler,
	invoicesV1 *invoice.Handler,
	opts Options,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}

	// The provider posts results here; the path is registered with it at push time.
	router.Post("/callback", callbacks.ServeHTTP)

	router.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))

		r.Get("/check-status/{id}", paymentsV1.Status)

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/payments", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				paymentsV1.Routes(r)
			})

			r.Post("/mpesa/callback", callbacks.ServeHTTP)

			// Operator routes are only mounted when token verification is configured.
			if opts.OperatorAuth == nil {
				return
			}

			r.Group(func(r chi.Router) {
				r.Use(opts.OperatorAuth)

				r.Route("/admin", adminV1.Routes)

				r.Route("/invoices", func(r chi.Router) {
					r.Use(middleware.AllowContentType("application/json"))
					invoicesV1.Routes(r)
				})
			})
		})
	})

	return router
}
