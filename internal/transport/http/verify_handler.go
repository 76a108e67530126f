package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/middleware"
	"licensegate/internal/services"
)

// VerifyHandler exposes the activation engine over HTTP.
type VerifyHandler struct {
	service     services.ActivationService
	purchaseURL string
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewVerifyHandler creates a new verification handler. The purchase URL is
// attached to invalid-key rejections so clients can point users at the
// storefront.
func NewVerifyHandler(service services.ActivationService, purchaseURL string, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{
		service:     service,
		purchaseURL: purchaseURL,
		validate:    validator.New(),
		logger:      logger.With(slog.String("handler", "verify")),
	}
}

// VerifyPayload is the request body for POST /verify.
type VerifyPayload struct {
	LicenseKey string `json:"license_key" validate:"required"`
	Username   string `json:"username" validate:"required"`
	HWID       string `json:"hwid" validate:"required"`
}

// LegacyVerifyPayload is the request body for POST /verify_legacy. The
// legacy flag must be present and true; a falsy flag is treated the same as
// a missing parameter, keeping the endpoint unusable for normal clients.
type LegacyVerifyPayload struct {
	LicenseKey string `json:"license_key" validate:"required"`
	Username   string `json:"username" validate:"required"`
	HWID       string `json:"hwid" validate:"required"`
	Legacy     bool   `json:"legacy" validate:"required"`
}

// verifyResponse is the wire shape shared by both endpoints. FirstUse is a
// pointer so success responses always carry it while rejections never do.
type verifyResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	FirstUse    *bool  `json:"first_use,omitempty"`
	Legacy      bool   `json:"legacy,omitempty"`
	PurchaseURL string `json:"purchase_url,omitempty"`
}

// RegisterRoutes mounts the verification endpoints on the router.
func (h *VerifyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/verify", h.Verify)
	r.Post("/verify_legacy", h.VerifyLegacy)
}

// Verify handles POST /verify.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	var payload VerifyPayload
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		h.logger.WarnContext(ctx, "malformed verify request",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		h.renderError(w, r, apierrors.ErrInvalidRequest)
		return
	}

	// Presence validation happens here so rejected requests never touch
	// the store.
	if err := h.validate.Struct(&payload); err != nil {
		h.logger.WarnContext(ctx, "verify request missing parameters",
			slog.String("request_id", reqID))
		h.renderError(w, r, apierrors.ErrMissingParameters)
		return
	}

	h.logger.InfoContext(ctx, "verification request",
		slog.String("request_id", reqID),
		slog.String("username", payload.Username),
		slog.String("license_key", maskKey(payload.LicenseKey)))

	result, err := h.service.Verify(ctx, services.VerifyRequest{
		LicenseKey: payload.LicenseKey,
		Username:   payload.Username,
		HWID:       payload.HWID,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.renderSuccess(w, r, result)
}

// VerifyLegacy handles POST /verify_legacy.
func (h *VerifyHandler) VerifyLegacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	var payload LegacyVerifyPayload
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		h.logger.WarnContext(ctx, "malformed legacy verify request",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		h.renderError(w, r, apierrors.ErrInvalidRequest)
		return
	}

	if err := h.validate.Struct(&payload); err != nil {
		h.logger.WarnContext(ctx, "legacy verify request missing parameters",
			slog.String("request_id", reqID))
		h.renderError(w, r, apierrors.ErrMissingParameters)
		return
	}

	h.logger.InfoContext(ctx, "legacy enrollment request",
		slog.String("request_id", reqID),
		slog.String("username", payload.Username),
		slog.String("license_key", maskKey(payload.LicenseKey)))

	result, err := h.service.VerifyLegacy(ctx, services.LegacyVerifyRequest{
		LicenseKey: payload.LicenseKey,
		Username:   payload.Username,
		HWID:       payload.HWID,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.renderSuccess(w, r, result)
}

// renderSuccess writes the 200 response for either flow.
func (h *VerifyHandler) renderSuccess(w http.ResponseWriter, r *http.Request, result *services.VerifyResult) {
	firstUse := result.FirstUse
	render.Status(r, http.StatusOK)
	render.JSON(w, r, verifyResponse{
		Success:  true,
		Message:  result.Message,
		FirstUse: &firstUse,
		Legacy:   result.Legacy,
	})
}

// renderError writes a rejection response using the error's own status
// class and caller-facing message.
func (h *VerifyHandler) renderError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	resp := verifyResponse{
		Success: false,
		Message: apiErr.Message,
	}
	if errors.Is(apiErr, apierrors.ErrInvalidKey) {
		resp.PurchaseURL = h.purchaseURL
	}
	render.Status(r, apiErr.StatusCode)
	render.JSON(w, r, resp)
}

// handleError maps engine errors onto responses. Internal causes are logged
// but never leave the diagnostic output.
func (h *VerifyHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	apiErr := apierrors.AsAPIError(err)

	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "verification failed",
			slog.String("request_id", middleware.GetReqID(ctx)),
			slog.String("error", err.Error()))
	} else {
		h.logger.InfoContext(ctx, "verification rejected",
			slog.String("request_id", middleware.GetReqID(ctx)),
			slog.String("reason", apiErr.ErrorCode))
	}

	h.renderError(w, r, apiErr)
}

// maskKey hides the middle of a license key for logging.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
