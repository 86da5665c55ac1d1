package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	actorKey     contextKey = "actor"
	keyPrefixKey contextKey = "key_prefix"
	scopesKey    contextKey = "api_key_scopes"
)

// SetActor stores the authenticated actor name in ctx.
func SetActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor returns the name recorded as inBy/outBy for this request.
func GetActor(r *http.Request) (string, bool) {
	actor, ok := r.Context().Value(actorKey).(string)
	return actor, ok && actor != ""
}

// SetScopes stores the authenticated key's scopes in ctx.
func SetScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, scopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(scopesKey).([]string)
	return scopes
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}
