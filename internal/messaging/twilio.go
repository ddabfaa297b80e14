package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lettings_triage_backend/platform/logger"
)

// TwilioConfig holds the credentials for the Twilio REST API.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
}

// TwilioSender sends SMS through the Twilio Messages REST endpoint.
type TwilioSender struct {
	config TwilioConfig
	http   *http.Client
	log    *logger.Logger
}

func NewTwilioSender(cfg TwilioConfig, log *logger.Logger) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account sid and auth token are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}

	return &TwilioSender{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}, nil
}

type twilioMessageResponse struct {
	Sid          string `json:"sid"`
	ErrorMessage string `json:"error_message"`
}

func (s *TwilioSender) SendSms(ctx context.Context, input SendInput) (SendResult, error) {
	form := url.Values{}
	form.Set("From", input.From)
	form.Set("To", input.To)
	form.Set("Body", input.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.config.BaseURL, "/"), s.config.AccountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)

	resp, err := s.http.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("twilio request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return SendResult{}, fmt.Errorf("twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed twilioMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return SendResult{}, fmt.Errorf("decode twilio response: %w", err)
	}
	if parsed.Sid == "" {
		return SendResult{}, fmt.Errorf("twilio response missing message sid: %s", parsed.ErrorMessage)
	}

	s.log.SmsSent("twilio", input.From, input.To, parsed.Sid)
	return SendResult{ProviderMessageID: parsed.Sid, Provider: "twilio"}, nil
}
