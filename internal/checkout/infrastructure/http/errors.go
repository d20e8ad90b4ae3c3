package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden, apperr.KindNotEligibleNewUserOnly, apperr.KindNotEligiblePlanRequired:
		return http.StatusForbidden
	case apperr.KindMissingFields, apperr.KindCouponNotFound, apperr.KindCouponExpired:
		return http.StatusBadRequest
	case apperr.KindProductNotFound, apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindCouponExists, apperr.KindDuplicateRequest:
		return http.StatusConflict
	case apperr.KindPaymentGatewayError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error struct {
		Kind    apperr.Kind `json:"kind"`
		Message string      `json:"message"`
	} `json:"error"`
}

// writeError maps err onto a status and a stable body. Internal details of
// unexpected errors are logged, never returned.
func writeError(log *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	var body errorBody
	body.Error.Kind = kind
	if e, ok := apperr.As(err); ok && status < http.StatusInternalServerError {
		body.Error.Message = e.Message
	} else {
		body.Error.Message = http.StatusText(status)
		if e, ok := apperr.As(err); ok && kind == apperr.KindPaymentGatewayError {
			body.Error.Message = e.Message
		}
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
