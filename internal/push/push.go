// Package push registers the device's push-notification token with the
// store backend, once per token.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/session"
)

// DefaultStorageKey is where the last registered token is kept.
const DefaultStorageKey = "push_token"

// DefaultEndpointPath is appended to the store URL when no endpoint is
// configured.
const DefaultEndpointPath = "/wp-json/mobile-app/v1/store-device-token"

// Permission is the device's notification permission.
type Permission string

const (
	Granted      Permission = "granted"
	Denied       Permission = "denied"
	Undetermined Permission = "undetermined"
)

// Device is the platform's notification API.
type Device interface {
	Platform() string
	PermissionStatus(ctx context.Context) (Permission, error)
	RequestPermission(ctx context.Context) (Permission, error)
	// ExpoToken returns an Expo push token for projectID (iOS).
	ExpoToken(ctx context.Context, projectID string) (string, error)
	// DeviceToken returns the native FCM/APNs token (Android).
	DeviceToken(ctx context.Context) (string, error)
}

// Store keeps the last registered token.
type Store interface {
	// Load returns "" when nothing is stored under key.
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, token string) error
}

// Outcome is what Sync did.
type Outcome string

const (
	PermissionDenied Outcome = "permission_denied"
	NoToken          Outcome = "no_token"
	Unchanged        Outcome = "unchanged"
	Registered       Outcome = "registered"
	Failed           Outcome = "failed"
)

// Config configures a Registrar.
type Config struct {
	Endpoint   string
	ProjectID  string
	StorageKey string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Registration is the backend request body.
type Registration struct {
	DeviceToken string `json:"device_token"`
	DeviceType  string `json:"device_type"`
	UserID      int    `json:"user_id"`
}

// Registrar syncs one device's token.
type Registrar struct {
	device   Device
	store    Store
	sessions session.Provider
	client   *http.Client
	cfg      Config
	logger   *slog.Logger
}

// NewRegistrar creates a Registrar. sessions may be nil, in which case the
// token is registered for user 0.
func NewRegistrar(device Device, store Store, sessions session.Provider, cfg Config, logger *slog.Logger) *Registrar {
	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Registrar{
		device:   device,
		store:    store,
		sessions: sessions,
		client:   client,
		cfg:      cfg,
		logger:   logger,
	}
}

// Sync asks for permission if needed, obtains the platform token and, if it
// differs from the stored one, saves it and posts it to the backend.
// Failures are logged and reported as Failed; they never propagate.
func (r *Registrar) Sync(ctx context.Context) Outcome {
	outcome, err := r.sync(ctx)
	if err != nil {
		r.logger.Warn("push token sync failed", "error", err)
		return Failed
	}
	r.logger.Debug("push token sync", "outcome", outcome)
	return outcome
}

func (r *Registrar) sync(ctx context.Context) (Outcome, error) {
	status, err := r.device.PermissionStatus(ctx)
	if err != nil {
		return Failed, fmt.Errorf("reading permission: %w", err)
	}
	if status != Granted {
		if status, err = r.device.RequestPermission(ctx); err != nil {
			return Failed, fmt.Errorf("requesting permission: %w", err)
		}
	}
	if status != Granted {
		return PermissionDenied, nil
	}

	platform := r.device.Platform()
	var token string
	if platform == "ios" {
		token, err = r.device.ExpoToken(ctx, r.cfg.ProjectID)
	} else {
		token, err = r.device.DeviceToken(ctx)
	}
	if err != nil {
		return Failed, fmt.Errorf("obtaining token: %w", err)
	}
	if token == "" {
		return NoToken, nil
	}

	saved, err := r.store.Load(ctx, r.cfg.StorageKey)
	if err != nil {
		return Failed, fmt.Errorf("loading saved token: %w", err)
	}
	if saved == token {
		return Unchanged, nil
	}

	if err := r.store.Save(ctx, r.cfg.StorageKey, token); err != nil {
		return Failed, fmt.Errorf("saving token: %w", err)
	}

	reg := Registration{DeviceToken: token, DeviceType: platform, UserID: r.userID(ctx)}
	if err := r.post(ctx, reg); err != nil {
		return Failed, err
	}
	return Registered, nil
}

func (r *Registrar) userID(ctx context.Context) int {
	if r.sessions == nil {
		return 0
	}
	s, err := r.sessions.Current(ctx)
	if err != nil {
		r.logger.Debug("session lookup failed", "error", err)
		return 0
	}
	return session.UserIDOrZero(s)
}

func (r *Registrar) post(ctx context.Context, reg Registration) error {
	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshaling registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting registration: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("posting registration: status %d", resp.StatusCode)
	}
	return nil
}

// StaticDevice is a Device whose permission and token are already known,
// e.g. reported by the app in a request body or passed on the command line.
type StaticDevice struct {
	OS         string
	Token      string
	Permission Permission
}

func (d StaticDevice) Platform() string { return d.OS }

func (d StaticDevice) PermissionStatus(context.Context) (Permission, error) {
	if d.Permission == "" {
		return Granted, nil
	}
	return d.Permission, nil
}

func (d StaticDevice) RequestPermission(ctx context.Context) (Permission, error) {
	return d.PermissionStatus(ctx)
}

func (d StaticDevice) ExpoToken(context.Context, string) (string, error) { return d.Token, nil }

func (d StaticDevice) DeviceToken(context.Context) (string, error) { return d.Token, nil }
