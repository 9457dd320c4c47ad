package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"village-assist/internal/app"
	"village-assist/internal/httputil"
	"village-assist/internal/otp"
)

type sendOTPRequest struct {
	MobileNumber string `json:"mobile_number" validate:"required,max=20"`
}

type verifyOTPRequest struct {
	MobileNumber string `json:"mobile_number" validate:"required,max=20"`
	OTP          string `json:"otp" validate:"required,numeric,max=10"`
}

func sendOTPHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendOTPRequest
		if !decodeJSON(deps, w, r, &req) {
			return
		}
		err := deps.OTP.Issue(r.Context(), req.MobileNumber)
		switch {
		case err == nil:
			httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "OTP sent"})
		case errors.Is(err, otp.ErrInvalidMobile):
			httputil.WriteError(w, http.StatusBadRequest, "enter a valid 10-digit mobile number")
		case errors.Is(err, otp.ErrRateLimited):
			httputil.WriteError(w, http.StatusTooManyRequests, "too many OTP requests; try again later")
		default:
			deps.Log.Error("failed to issue otp", "err", err)
			httputil.WriteError(w, http.StatusInternalServerError, "could not send OTP")
		}
	}
}

func verifyOTPHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyOTPRequest
		if !decodeJSON(deps, w, r, &req) {
			return
		}
		token, err := deps.OTP.Verify(r.Context(), req.MobileNumber, req.OTP)
		switch {
		case err == nil:
			httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "OTP verified", "token": token})
		case errors.Is(err, otp.ErrInvalidMobile):
			httputil.WriteError(w, http.StatusBadRequest, "enter a valid 10-digit mobile number")
		case errors.Is(err, otp.ErrExpired):
			httputil.WriteError(w, http.StatusBadRequest, "OTP expired; request a new one")
		case errors.Is(err, otp.ErrInvalid):
			httputil.WriteError(w, http.StatusBadRequest, "incorrect OTP")
		case errors.Is(err, otp.ErrRateLimited):
			httputil.WriteError(w, http.StatusTooManyRequests, "too many incorrect attempts; request a new OTP")
		default:
			deps.Log.Error("failed to verify otp", "err", err)
			httputil.WriteError(w, http.StatusInternalServerError, "could not verify OTP")
		}
	}
}

type mobileKey struct{}

// verifiedMobile stores the mobile number of a valid bearer token in the
// request context. Requests without a token pass through unchanged.
func verifiedMobile(deps app.Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || deps.OTP == nil {
				next.ServeHTTP(w, r)
				return
			}
			mobile, err := deps.OTP.ParseToken(strings.TrimSpace(token))
			if err != nil {
				httputil.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), mobileKey{}, mobile)))
		})
	}
}

// mobileFromContext returns the verified mobile number, if any.
func mobileFromContext(ctx context.Context) string {
	m, _ := ctx.Value(mobileKey{}).(string)
	return m
}
