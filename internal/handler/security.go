package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/mollapos/shift-service/internal/domain/auth"
	"github.com/mollapos/shift-service/pkg/httpmiddleware"
)

type actorKey struct{}

// ActorFromContext returns the authenticated actor, or nil.
func ActorFromContext(ctx context.Context) *auth.Actor {
	actor, _ := ctx.Value(actorKey{}).(*auth.Actor)
	return actor
}

func actorID(ctx context.Context) string {
	if actor := ActorFromContext(ctx); actor != nil {
		return actor.UserID
	}
	return ""
}

// SecurityConfig controls request authentication.
type SecurityConfig struct {
	// AllowFallback lets requests without a valid credential through,
	// attributed to FallbackCashierID. Meant for single-terminal deployments
	// that have not rolled out tokens yet; keep it off everywhere else.
	AllowFallback     bool
	FallbackCashierID string
}

// Authenticate resolves the Authorization bearer token into an actor stored
// in the request context. Requests without a valid credential get a 401
// unless the fallback is enabled.
func Authenticate(resolver auth.Resolver, cfg SecurityConfig) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := resolveActor(r, resolver)
			if err != nil {
				if cfg.AllowFallback && cfg.FallbackCashierID != "" {
					actor = &auth.Actor{UserID: cfg.FallbackCashierID}
				} else {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
			}
			ctx := context.WithValue(r.Context(), actorKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveActor(r *http.Request, resolver auth.Resolver) (*auth.Actor, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, auth.ErrUnauthenticated
	}
	return resolver.Resolve(r.Context(), token)
}
