package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

var (
	ErrDeviceExpired = errors.New("device code expired")
	ErrDeviceDenied  = errors.New("authorization denied")
)

// DeviceCode is what the user needs to approve this device.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// DeviceAuthorize runs the device flow: prompt is called with the user code,
// then the token endpoint is polled until the user approves, denies or the
// code expires.
func (a *Authenticator) DeviceAuthorize(ctx context.Context, prompt func(DeviceCode)) error {
	var dc DeviceCode
	status, err := a.postJSON(ctx, "/oauth/device/code", map[string]string{"client_id": a.cfg.ClientID}, &dc)
	if err != nil {
		return fmt.Errorf("request device code: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("device code endpoint returned %d", status)
	}
	prompt(dc)

	interval := time.Duration(dc.Interval) * time.Second
	if a.cfg.DevicePollInterval > 0 {
		interval = a.cfg.DevicePollInterval
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := a.cfg.Now().Add(time.Duration(dc.ExpiresIn) * time.Second)

	body := map[string]string{
		"code":          dc.DeviceCode,
		"client_id":     a.cfg.ClientID,
		"client_secret": a.cfg.ClientSecret,
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		var tok Token
		status, err := a.postJSON(ctx, "/oauth/device/token", body, &tok)
		if err != nil {
			return fmt.Errorf("poll device token: %w", err)
		}
		switch status {
		case http.StatusOK:
			if tok.CreatedAt == 0 {
				tok.CreatedAt = a.cfg.Now().Unix()
			}
			a.mu.Lock()
			defer a.mu.Unlock()
			return a.saveLocked(ctx, &tok)
		case http.StatusBadRequest:
			// pending
		case http.StatusTooManyRequests:
			interval *= 2
			a.log.Debug("device polling slowed down", slog.Duration("interval", interval))
		case http.StatusGone:
			return ErrDeviceExpired
		case http.StatusTeapot:
			return ErrDeviceDenied
		default:
			return fmt.Errorf("device token endpoint returned %d", status)
		}
		if dc.ExpiresIn > 0 && a.cfg.Now().After(deadline) {
			return ErrDeviceExpired
		}
	}
}
