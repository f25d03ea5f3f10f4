package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bass5068/bottle-redeem/internal/ledger"
)

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

var statusByError = []struct {
	err    error
	status int
}{
	{ledger.ErrInvalidInput, http.StatusBadRequest},
	{ledger.ErrInvalidAmount, http.StatusBadRequest},
	{ledger.ErrTokenAlreadyUsed, http.StatusBadRequest},
	{ledger.ErrTokenExpired, http.StatusBadRequest},
	{ledger.ErrInsufficientPoints, http.StatusBadRequest},
	{ledger.ErrOutOfStock, http.StatusBadRequest},
	{ledger.ErrInvalidStatus, http.StatusBadRequest},
	{ledger.ErrInvalidTransition, http.StatusBadRequest},
	{ledger.ErrDeviceUnauthorized, http.StatusUnauthorized},
	{ledger.ErrForbidden, http.StatusForbidden},
	{ledger.ErrUserNotFound, http.StatusNotFound},
	{ledger.ErrRewardNotFound, http.StatusNotFound},
	{ledger.ErrTokenNotFound, http.StatusNotFound},
	{ledger.ErrRedemptionNotFound, http.StatusNotFound},
	{ledger.ErrDeviceNotFound, http.StatusNotFound},
	{ledger.ErrConflict, http.StatusConflict},
}

// writeServiceError maps ledger sentinels to status codes. Anything unrecognized is
// logged and reported as server_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, entry := range statusByError {
		if !errors.Is(err, entry.err) {
			continue
		}
		code := entry.err.Error()
		if detail := strings.TrimPrefix(err.Error(), code+": "); detail != err.Error() {
			writeJSON(w, entry.status, map[string]string{"error": code, "message": detail})
			return
		}
		writeError(w, entry.status, code)
		return
	}
	slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "server_error")
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
