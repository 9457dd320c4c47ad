// Package sms delivers OTPs and notifications to mobile numbers.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sender sends text messages to 10-digit Indian mobile numbers.
type Sender interface {
	SendOTP(ctx context.Context, mobile, code string) error
	SendMessage(ctx context.Context, mobile, message string) error
}

// Fast2SMS sends through the Fast2SMS bulkV2 API.
type Fast2SMS struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewFast2SMS(endpoint, apiKey string) (*Fast2SMS, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("fast2sms api key required")
	}
	if endpoint == "" {
		endpoint = "https://www.fast2sms.com/dev/bulkV2"
	}
	return &Fast2SMS{endpoint: endpoint, apiKey: apiKey, client: &http.Client{Timeout: 10 * time.Second}}, nil
}

type fast2smsResponse struct {
	Return    bool            `json:"return"`
	RequestID string          `json:"request_id"`
	Message   json.RawMessage `json:"message"`
}

// SendOTP uses the OTP route, which renders the provider's fixed template.
func (f *Fast2SMS) SendOTP(ctx context.Context, mobile, code string) error {
	q := url.Values{}
	q.Set("route", "otp")
	q.Set("variables_values", code)
	q.Set("numbers", mobile)
	return f.send(ctx, q)
}

// SendMessage uses the quick transactional route.
func (f *Fast2SMS) SendMessage(ctx context.Context, mobile, message string) error {
	q := url.Values{}
	q.Set("route", "q")
	q.Set("message", message)
	q.Set("numbers", mobile)
	return f.send(ctx, q)
}

func (f *Fast2SMS) send(ctx context.Context, q url.Values) error {
	q.Set("authorization", f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("cache-control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fast2sms request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read fast2sms response: %w", err)
	}
	var out fast2smsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("fast2sms status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !out.Return {
		return fmt.Errorf("fast2sms rejected message: %s", strings.TrimSpace(string(out.Message)))
	}
	return nil
}

// LogSender only logs messages. Codes are masked.
type LogSender struct {
	Log *slog.Logger
}

func (l LogSender) logger() *slog.Logger {
	if l.Log == nil {
		return slog.Default()
	}
	return l.Log
}

func (l LogSender) SendOTP(_ context.Context, mobile, code string) error {
	l.logger().Info("sms otp (not sent)", "mobile", Mask(mobile), "code_len", len(code))
	return nil
}

func (l LogSender) SendMessage(_ context.Context, mobile, message string) error {
	l.logger().Info("sms message (not sent)", "mobile", Mask(mobile), "message", message)
	return nil
}

// Mask hides all but the last four digits of a phone number.
func Mask(mobile string) string {
	if len(mobile) <= 4 {
		return strings.Repeat("*", len(mobile))
	}
	return strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-4:]
}
