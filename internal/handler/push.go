package handler

import (
	"net/http"
	"strings"

	"storefront/internal/clientinfo"
	"storefront/internal/model"
	"storefront/internal/push"
	"storefront/internal/session"
)

// PushTokenRequest is what the app reports after obtaining a token.
type PushTokenRequest struct {
	DeviceToken string `json:"device_token"`
	// Platform defaults to the Storefront-Client header's platform.
	Platform string `json:"platform,omitempty"`
	// Permission defaults to granted; the app only calls after asking.
	Permission string `json:"permission,omitempty"`
	// InstallID defaults to the Storefront-Client header's install id.
	InstallID string `json:"install_id,omitempty"`
}

// PushTokenResponse reports what the registration did.
type PushTokenResponse struct {
	Outcome push.Outcome `json:"outcome"`
}

// POST /v1/devices/push-token
// Registration failures are reported in the body, never as an error status.
func (h *Handler) handlePushToken(w http.ResponseWriter, r *http.Request) {
	var req PushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	info := clientinfo.FromContext(r.Context())
	platform := info.Platform
	if req.Platform != "" {
		platform = clientinfo.NormalizePlatform(req.Platform)
	}
	install := strings.TrimSpace(req.InstallID)
	if install == "" {
		install = info.Install
	}
	if install == "" && req.DeviceToken == "" {
		h.writeError(w, model.NewValidationError("install_id", "required without a device token"))
		return
	}

	outcome := h.registerPush(r, push.StaticDevice{
		OS:         platform,
		Token:      strings.TrimSpace(req.DeviceToken),
		Permission: push.Permission(req.Permission),
	}, install)
	h.writeJSON(w, http.StatusOK, PushTokenResponse{Outcome: outcome})
}

func (h *Handler) registerPush(r *http.Request, device push.Device, install string) push.Outcome {
	key := push.DefaultStorageKey + ":" + install
	if install == "" {
		// Without an install id the token itself is the dedup key.
		token, _ := device.DeviceToken(r.Context())
		key = push.DefaultStorageKey + ":token:" + token
	}

	registrar := push.NewRegistrar(device, h.tokens, session.ContextProvider{}, push.Config{
		Endpoint:   h.cfg.PushEndpoint,
		ProjectID:  h.cfg.PushProjectID,
		StorageKey: key,
	}, h.logger)
	return registrar.Sync(r.Context())
}
