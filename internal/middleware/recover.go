package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// Recover converts handler panics into 500 responses instead of tearing the
// connection down.
func Recover(log *zap.Logger, next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("recovered from panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
