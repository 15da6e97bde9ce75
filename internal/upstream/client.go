package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"authgate/internal/shared/config"
)

// Client talks to the external identity backend. It implements the HTTP
// contract only; user storage, OTP devices and email delivery live behind
// it. No call is retried automatically.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.UpstreamConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Login exchanges credentials. A trusted-device id, when present, is
// forwarded as the cookie the backend expects so it can bypass the OTP
// step.
func (c *Client) Login(ctx context.Context, email, password, trustedDeviceID string) (*LoginResult, error) {
	payload := map[string]string{
		"email":    email,
		"password": password,
	}

	var cookies []*http.Cookie
	if trustedDeviceID != "" {
		cookies = append(cookies, &http.Cookie{Name: "trusted_device", Value: trustedDeviceID})
	}

	var result LoginResult
	if err := c.post(ctx, "/auth/login/", payload, &result, cookies...); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyOTP completes the OTP step.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) (*VerifyOTPResult, error) {
	payload := map[string]string{
		"email":    email,
		"otp_code": code,
	}

	var result VerifyOTPResult
	if err := c.post(ctx, "/token/verify-otp/", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Refresh exchanges a refresh token for a fresh pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	payload := map[string]string{
		"refresh": refreshToken,
	}

	var pair TokenPair
	if err := c.post(ctx, "/auth/refresh/", payload, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// ForceChangePassword completes the forced password-change step.
func (c *Client) ForceChangePassword(ctx context.Context, email, currentPassword, newPassword string) error {
	payload := map[string]string{
		"email":            email,
		"current_password": currentPassword,
		"new_password":     newPassword,
	}
	return c.post(ctx, "/users/force-change-password/", payload, nil)
}

// ResetPassword completes the password-reset step.
func (c *Client) ResetPassword(ctx context.Context, email, newPassword string) error {
	payload := map[string]string{
		"email":        email,
		"new_password": newPassword,
	}
	return c.post(ctx, "/users/reset-password/", payload, nil)
}

// post sends a JSON payload and decodes the response into out. Failures
// are normalized to *Error; an error body that does not parse as the
// {error, message} envelope falls back to the raw string as the message.
func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}, cookies ...*http.Cookie) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Error   bool   `json:"error"`
		Message string `json:"message"`
	}
	envelopeParsed := json.Unmarshal(data, &envelope) == nil

	if resp.StatusCode >= 400 || (envelopeParsed && envelope.Error) {
		message := envelope.Message
		if !envelopeParsed || message == "" {
			message = strings.TrimSpace(string(data))
		}
		return &Error{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
