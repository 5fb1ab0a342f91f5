package clientinfo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/model"
)

// Middleware parses the Storefront-Client header into the request context
// and rejects app builds below minimum with 426.
// A missing header is allowed; a malformed one is a 400.
func Middleware(minimum string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			info := Info{Platform: PlatformWeb}
			if header := r.Header.Get(Header); header != "" {
				parsed, err := Parse(header)
				if err != nil {
					logger.Warn("invalid Storefront-Client header",
						slog.String("header", header),
						slog.String("error", err.Error()))
					writeClientError(w, model.NewValidationError("Storefront-Client header", err.Error()))
					return
				}
				info = parsed
			}

			if err := CheckMinimum(info.Version, minimum); err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					writeClientError(w, apiErr)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithInfo(r.Context(), info)))
		})
	}
}

// isExemptPath returns true for infrastructure paths.
func isExemptPath(path string) bool {
	return path == "/health" || path == "/healthz"
}

func writeClientError(w http.ResponseWriter, err *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = err.Code
	resp.Error.Message = err.Message

	json.NewEncoder(w).Encode(resp)
}
