package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v4"
)

const (
	jwtClaimSubject = "sub"
	jwtClaimUserID  = "user_id"
	jwtClaimRole    = "role"
)

// ActorFromContext names the caller for operation records: the token subject,
// else its user_id.
func ActorFromContext(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", false
	}
	if sub, ok := claims[jwtClaimSubject].(string); ok && sub != "" {
		return sub, true
	}
	switch id := claims[jwtClaimUserID].(type) {
	case float64:
		if id > 0 && id == float64(int(id)) {
			return "user:" + strconv.Itoa(int(id)), true
		}
	case string:
		if id != "" {
			return "user:" + id, true
		}
	}
	return "", false
}

func RoleFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("user claims not found in context or invalid type")
	}
	roleClaim, ok := claims[jwtClaimRole]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimRole)
	}
	role, ok := roleClaim.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimRole, roleClaim)
	}
	switch role {
	case RoleOrganizer, RoleAdmin, RoleArena:
		return role, nil
	}
	return "", fmt.Errorf("invalid role value in claim: %q", role)
}
