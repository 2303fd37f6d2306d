package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"seafood-storefront/internal/model"
	"seafood-storefront/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected agent error",
	}

	var apiErr *apierror.APIError
	switch {
	case errors.Is(err, model.ErrSessionExpired) || errors.Is(err, model.ErrNoRefreshToken):
		status = http.StatusUnauthorized
		body.Code = "SESSION_EXPIRED"
		body.Message = "Session expired, please log in again"
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadGateway
		}
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	case errors.Is(err, model.ErrNotAuthenticated):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Login required"
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid credentials"
		body.Details = err.Error()
	case errors.Is(err, model.ErrInvalidProduct):
		status = http.StatusBadRequest
		body.Code = "INVALID_PRODUCT"
		body.Message = "Invalid product"
		body.Details = err.Error()
	case errors.Is(err, model.ErrInvalidQuantity):
		status = http.StatusBadRequest
		body.Code = "INVALID_QUANTITY"
		body.Message = "Quantity must be at least 1"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
		body.Details = err.Error()
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest)
	}
	return nil
}
