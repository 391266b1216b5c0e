package app

import (
	"net/http"

	"github.com/costwise/costwise/pkg/user"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router) {

	// Propagate X-User-Id header into context so services can stamp the
	// actor of record on created, approved, and rejected rows.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()

			actor := req.Header.Get("X-User-Id")
			if actor != "" {
				log.Tracef("acting user: %s", actor)
				ctx = user.WithActor(ctx, actor)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
}
