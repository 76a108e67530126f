package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/services"
)

const testPurchaseURL = "https://store.example.com/buy"

// MockActivationService is a testify mock for services.ActivationService.
type MockActivationService struct {
	mock.Mock
}

func (m *MockActivationService) Verify(ctx context.Context, req services.VerifyRequest) (*services.VerifyResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.VerifyResult), args.Error(1)
}

func (m *MockActivationService) VerifyLegacy(ctx context.Context, req services.LegacyVerifyRequest) (*services.VerifyResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.VerifyResult), args.Error(1)
}

func setupVerifyRouter(service services.ActivationService) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewVerifyHandler(service, testPurchaseURL, logger)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, router chi.Router, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestVerifySuccess(t *testing.T) {
	svc := new(MockActivationService)
	svc.On("Verify", mock.Anything, services.VerifyRequest{
		LicenseKey: "ABC-123", Username: "alice", HWID: "HW1",
	}).Return(&services.VerifyResult{
		FirstUse: true,
		Message:  "Login successful. Your device has been registered.",
	}, nil)

	rec := postJSON(t, setupVerifyRouter(svc),
		"/verify", `{"license_key":"ABC-123","username":"alice","hwid":"HW1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["first_use"])
	assert.NotContains(t, body, "legacy")
	assert.NotContains(t, body, "purchase_url")
	svc.AssertExpectations(t)
}

func TestVerifyReloginFirstUseFalse(t *testing.T) {
	svc := new(MockActivationService)
	svc.On("Verify", mock.Anything, mock.Anything).Return(&services.VerifyResult{
		FirstUse: false,
		Message:  "Login successful.",
	}, nil)

	rec := postJSON(t, setupVerifyRouter(svc),
		"/verify", `{"license_key":"ABC-123","username":"alice","hwid":"HW1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	// first_use is always present on success, even when false.
	assert.Contains(t, body, "first_use")
	assert.Equal(t, false, body["first_use"])
}

func TestVerifyMissingParameters(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"missing hwid", `{"license_key":"ABC-123","username":"alice"}`},
		{"empty username", `{"license_key":"ABC-123","username":"","hwid":"HW1"}`},
		{"null field", `{"license_key":null,"username":"alice","hwid":"HW1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockActivationService)
			rec := postJSON(t, setupVerifyRouter(svc), "/verify", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "Missing parameters", body["message"])
			// Rejected requests never reach the engine.
			svc.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
		})
	}
}

func TestVerifyMalformedJSON(t *testing.T) {
	svc := new(MockActivationService)
	rec := postJSON(t, setupVerifyRouter(svc), "/verify", `{"license_key": `)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	svc.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestVerifyInvalidKeyCarriesPurchaseURL(t *testing.T) {
	svc := new(MockActivationService)
	svc.On("Verify", mock.Anything, mock.Anything).Return(nil, apierrors.ErrInvalidKey)

	rec := postJSON(t, setupVerifyRouter(svc),
		"/verify", `{"license_key":"ZZZ-999","username":"alice","hwid":"HW1"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid product key", body["message"])
	assert.Equal(t, testPurchaseURL, body["purchase_url"])
}

func TestVerifyRejections(t *testing.T) {
	tests := []struct {
		name       string
		err        *apierrors.APIError
		wantStatus int
	}{
		{"device banned", apierrors.ErrDeviceBanned, http.StatusForbidden},
		{"user banned", apierrors.ErrUserBanned, http.StatusForbidden},
		{"key inactive", apierrors.ErrKeyInactive, http.StatusForbidden},
		{"device mismatch", apierrors.ErrDeviceMismatch, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockActivationService)
			svc.On("Verify", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := postJSON(t, setupVerifyRouter(svc),
				"/verify", `{"license_key":"ABC-123","username":"alice","hwid":"HW1"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.err.Message, body["message"])
			// Only the invalid-key rejection points at the storefront.
			assert.NotContains(t, body, "purchase_url")
		})
	}
}

func TestVerifyServerErrorHidesCause(t *testing.T) {
	svc := new(MockActivationService)
	svc.On("Verify", mock.Anything, mock.Anything).
		Return(nil, apierrors.ServerError(errors.New("github: token expired")))

	rec := postJSON(t, setupVerifyRouter(svc),
		"/verify", `{"license_key":"ABC-123","username":"alice","hwid":"HW1"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Server error", body["message"])
	assert.NotContains(t, rec.Body.String(), "token expired")
}

func TestVerifyUnclassifiedErrorBecomesServerError(t *testing.T) {
	svc := new(MockActivationService)
	svc.On("Verify", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	rec := postJSON(t, setupVerifyRouter(svc),
		"/verify", `{"license_key":"ABC-123","username":"alice","hwid":"HW1"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestVerifyLegacySuccess(t *testing.T) {
	svc := new(MockActivationService)
	svc.On("VerifyLegacy", mock.Anything, services.LegacyVerifyRequest{
		LicenseKey: "AUTO-1", Username: "carol", HWID: "HW4",
	}).Return(&services.VerifyResult{
		FirstUse: true,
		Legacy:   true,
		Message:  "Legacy registration successful. Automatic license issued.",
	}, nil)

	rec := postJSON(t, setupVerifyRouter(svc),
		"/verify_legacy", `{"license_key":"AUTO-1","username":"carol","hwid":"HW4","legacy":true}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["first_use"])
	assert.Equal(t, true, body["legacy"])
	svc.AssertExpectations(t)
}

func TestVerifyLegacyRequiresLegacyFlag(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"flag absent", `{"license_key":"AUTO-1","username":"carol","hwid":"HW4"}`},
		{"flag false", `{"license_key":"AUTO-1","username":"carol","hwid":"HW4","legacy":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockActivationService)
			rec := postJSON(t, setupVerifyRouter(svc), "/verify_legacy", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "Missing parameters", body["message"])
			svc.AssertNotCalled(t, "VerifyLegacy", mock.Anything, mock.Anything)
		})
	}
}

func TestVerifyLegacyOwnerRegistered(t *testing.T) {
	svc := new(MockActivationService)
	svc.On("VerifyLegacy", mock.Anything, mock.Anything).Return(nil, apierrors.ErrOwnerRegistered)

	rec := postJSON(t, setupVerifyRouter(svc),
		"/verify_legacy", `{"license_key":"AUTO-1","username":"carol","hwid":"HW5","legacy":true}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
}

func TestVerifyIgnoresUnknownFields(t *testing.T) {
	svc := new(MockActivationService)
	svc.On("Verify", mock.Anything, mock.Anything).
		Return(&services.VerifyResult{FirstUse: false, Message: "Login successful."}, nil)

	rec := postJSON(t, setupVerifyRouter(svc),
		"/verify", `{"license_key":"ABC-123","username":"alice","hwid":"HW1","extra":"ignored"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", maskKey("short"))
	assert.Equal(t, "****", maskKey(""))
	assert.Equal(t, "PREM****2345", maskKey("PREMIUM-12345"))
}

func TestVerifyEmptyBody(t *testing.T) {
	svc := new(MockActivationService)
	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	setupVerifyRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}
