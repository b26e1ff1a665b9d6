package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/angelmondragon/clinicops-backend/api/responses"
	pkgerrors "github.com/angelmondragon/clinicops-backend/pkg/errors"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 error envelope.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return recoverWith(logg, func(ctx context.Context, w http.ResponseWriter, err error) {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
	})
}

// AckRecoverer is used on the webhook routes: the payment provider retries
// anything that is not a 200, so a panic is logged and still acknowledged.
func AckRecoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return recoverWith(logg, func(_ context.Context, w http.ResponseWriter, _ error) {
		responses.WriteText(w, http.StatusOK, "OK")
	})
}

func recoverWith(logg *logger.Logger, write func(context.Context, http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{"panic": rec, "path": r.URL.Path})
					logg.Error(ctx, "panic.recovered", err)
				}
				write(ctx, w, err)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
