package tenant

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Header carries the tenant on every API request. Resolving a tenant from a
// storefront domain happens upstream; by the time a request reaches this
// service the header is already set.
const Header = "X-Tenant-ID"

type ctxKey struct{}

func NewContext(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// exempt lists paths served without a tenant.
var exempt = map[string]bool{
	"/metrics": true,
	"/healthz": true,
}

// Middleware rejects requests missing the tenant header and makes the tenant
// available on the request context for everything downstream.
func Middleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		tenantID := r.Header.Get(Header)
		if tenantID == "" {
			logger.Warn("request rejected: missing tenant header", "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing " + Header + " header"})
			return
		}

		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), tenantID)))
	})
}
