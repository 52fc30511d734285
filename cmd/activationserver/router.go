// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/posworks/activation-server/pkg/api"
)

func (s *Server) setRoutes() *chi.Mux {

	// Set api controller dependencies
	a := api.NewAPICtrl(s.Config, s.Store)

	// Define the router
	r := chi.NewRouter()

	// Recovery middleware
	r.Use(middleware.Recoverer)

	// Heartbeat (excluded from logs)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("The Activation Server is running!"))
	})

	// Group for all other routes
	r.Group(func(r chi.Router) {
		// Logger middleware
		r.Use(middleware.Logger)

		r.NotFound(notFoundProblemDetail)

		// CORS Configuration
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:8090", "http://localhost:8091"}, // URLs of the React frontend
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300, // Maximum value not ignored by any of major browsers
		}))

		// License activation, called by desktop agents
		r.Group(func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Post("/license/validate", a.ValidateLicense)               // POST /license/validate
			r.Post("/license/activate", a.ActivateLicense)               // POST /license/activate
			r.Put("/license/deactivate", a.DeactivateLicense)            // PUT /license/deactivate
			r.Get("/license/status/{serialNumber}", a.GetLicenseStatus) // GET /license/status/POS-2026-ABC123-DEF4
		})

		// Private Routes
		// Require Authentication
		credentials := make(map[string]string)
		credentials[s.Config.Access.Username] = s.Config.Access.Password

		r.Group(func(r chi.Router) {
			r.Use(middleware.BasicAuth("restricted", credentials))
			r.Use(render.SetContentType(render.ContentTypeJSON))

			// License keys, CRUD
			r.Route("/keys", func(r chi.Router) {
				r.With(paginate).Get("/", a.ListKeys)         // GET /keys/
				r.With(paginate).Get("/search", a.SearchKeys) // GET /keys/search{?status}
				r.Post("/", a.CreateKey)                      // POST /keys

				r.Route("/{serialNumber}", func(r chi.Router) {
					r.Get("/", a.GetKey) // GET /keys/POS-2026-ABC123-DEF4
				})
			})

			// Key events
			r.Route("/license-events/{serialNumber}", func(r chi.Router) {
				r.Get("/", a.ListKeyEvents) // GET /license-events/POS-2026-ABC123-DEF4
			})

			// Key revocation
			r.Put("/revoke/{serialNumber}", a.RevokeKey) // PUT /revoke/POS-2026-ABC123-DEF4
		})

		// Dashboard data
		r.Post("/dashdata/login", Login(s.Config)) // POST /dashdata/login
		// Require JWT Authentication
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.Config))
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Route("/dashdata", func(r chi.Router) {
				r.Get("/data", a.GetStats)                       // GET /dashdata/data
				r.Get("/overshared", a.GetConflictedHardware)    // GET /dashdata/overshared
				r.Put("/revoke/{serialNumber}", a.RevokeKey)     // PUT /dashdata/revoke/POS-2026-ABC123-DEF4
				r.With(paginate).Get("/keys", a.ListKeys)        // GET /dashdata/keys
				r.Get("/license-events/{serialNumber}", a.ListKeyEvents) // GET /dashdata/license-events/POS-2026-ABC123-DEF4
			})
		})

	})

	return r
}

// paginate middleware
func paginate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// default values
		page := 1
		perPage := 20

		// read query parameters
		q := r.URL.Query()
		if p := q.Get("page"); p != "" {
			if val, err := strconv.Atoi(p); err == nil && val > 0 {
				page = val
			}
		}
		if pp := q.Get("per_page"); pp != "" {
			if val, err := strconv.Atoi(pp); err == nil && val > 0 {
				perPage = val
			}
		}

		// add to context
		ctx := context.WithValue(r.Context(), api.PageKey, page)
		ctx = context.WithValue(ctx, api.PerPageKey, perPage)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// notFoundProblemDetail formats not found errors as problem details, for the sake of consistency.
func notFoundProblemDetail(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{"type": "about:blank", "title": "Endpoint not found."}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)

	json.NewEncoder(w).Encode(response)
}
