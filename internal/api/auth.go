package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/carebook/booking-engine/internal/appointment"
)

const actorKey contextKey = "actor"

type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// resolveActor turns a bearer token into the authenticated caller. Token
// issuance lives in the external auth service; this side only verifies.
func resolveActor(secret []byte, r *http.Request) (appointment.Actor, bool) {
	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return appointment.Actor{}, false
	}

	var claims actorClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return appointment.Actor{}, false
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return appointment.Actor{}, false
	}

	switch appointment.Role(claims.Role) {
	case appointment.RoleDoctor, appointment.RolePatient:
		return appointment.Actor{ID: id, Role: appointment.Role(claims.Role)}, true
	}
	return appointment.Actor{}, false
}

// RequireRole authenticates the request and rejects callers whose role does
// not match. Pass an empty role to accept either.
func RequireRole(secret []byte, role appointment.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := resolveActor(secret, r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
				return
			}
			if role != "" && actor.Role != role {
				writeError(w, http.StatusUnauthorized, "wrong_role", "this endpoint requires a "+string(role)+" token")
				return
			}
			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the authenticated actor placed by RequireRole.
func ActorFromContext(ctx context.Context) (appointment.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(appointment.Actor)
	return actor, ok
}
