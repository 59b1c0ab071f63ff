package merchants

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/inving/dispatch/internal/api/respond"
)

type contextKey string

const merchantKey contextKey = "merchant"

type merchantResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (Merchant, error)
}

// ResolveMerchant inspects /merchant/{id}/... paths, loads the merchant and
// aborts with 422 when it does not resolve. Other paths pass through.
func ResolveMerchant(store merchantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Split(r.URL.Path, "/")
			if len(parts) < 3 || parts[1] != "merchant" || parts[2] == "" {
				next.ServeHTTP(w, r)
				return
			}

			merchantID, err := uuid.Parse(parts[2])
			if err != nil {
				respond.Unprocessable(w, "Invalid format merchant id", err.Error())
				return
			}

			merchant, err := store.GetByID(r.Context(), merchantID)
			if err != nil {
				respond.Unprocessable(w, "Merchant not found", merchantID.String())
				return
			}

			ctx := context.WithValue(r.Context(), merchantKey, merchant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MerchantFromContext returns the merchant resolved by ResolveMerchant.
func MerchantFromContext(ctx context.Context) (Merchant, bool) {
	m, ok := ctx.Value(merchantKey).(Merchant)
	return m, ok
}
