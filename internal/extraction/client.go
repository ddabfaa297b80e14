package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lettings_triage_backend/platform/logger"
)

// ClientConfig configures the NLP extraction backend (OpenAI-compatible
// chat-completions API).
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client calls an OpenAI-compatible backend for structured extraction and
// falls back to the heuristic extractor on any failure. The caller never
// sees backend errors.
type Client struct {
	config    ClientConfig
	http      *http.Client
	heuristic *HeuristicExtractor
	log       *logger.Logger
}

func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4.1-mini"
	}
	return &Client{
		config:    cfg,
		http:      &http.Client{Timeout: 15 * time.Second},
		heuristic: NewHeuristicExtractor(),
		log:       log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat any           `json:"response_format"`
	Messages       []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// extractionPayload mirrors the JSON object the backend is instructed to emit.
type extractionPayload struct {
	Stop             bool    `json:"stop"`
	Intent           string  `json:"intent"`
	Postcode         *string `json:"postcode"`
	Severity         *string `json:"severity"`
	AngerSignals     bool    `json:"angerSignals"`
	SafetyRisk       bool    `json:"safetyRisk"`
	Name             *string `json:"name"`
	AreaOrProperty   *string `json:"areaOrProperty"`
	CallbackText     *string `json:"callbackText"`
	IssueDescription *string `json:"issueDescription"`
	Summary          *string `json:"summary"`
}

const systemPrompt = "You extract structured fields from UK property-management SMS messages. Output JSON only. Do not include markdown."

func userPrompt(body string) string {
	return strings.Join([]string{
		"Return JSON with keys:",
		"stop:boolean, intent:(VIEWING|MAINTENANCE|GENERAL|UNKNOWN), postcode:string|null, severity:(ROUTINE|URGENT|EMERGENCY|null),",
		"angerSignals:boolean, safetyRisk:boolean, name:string|null, areaOrProperty:string|null, callbackText:string|null, issueDescription:string|null, summary:string|null.",
		"Message:",
		body,
	}, "\n")
}

// Extract returns the backend's signals when it responds with a usable JSON
// object, and the heuristic extractor's signals otherwise.
func (c *Client) Extract(ctx context.Context, body string) Signals {
	if c.config.APIKey == "" {
		return c.heuristic.Extract(ctx, body)
	}

	signals, err := c.callBackend(ctx, body)
	if err != nil {
		c.log.Warn("extraction backend failed, using heuristic fallback", "error", err)
		return c.heuristic.Extract(ctx, body)
	}
	return signals
}

func (c *Client) callBackend(ctx context.Context, body string) (Signals, error) {
	payload := chatRequest{
		Model:          c.config.Model,
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(body)},
		},
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return Signals{}, err
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return Signals{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Signals{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return Signals{}, fmt.Errorf("extraction backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return Signals{}, err
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return Signals{}, fmt.Errorf("extraction backend returned no content")
	}

	var parsed extractionPayload
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &parsed); err != nil {
		return Signals{}, fmt.Errorf("decode extraction payload: %w", err)
	}

	return parsed.toSignals(), nil
}

func (p *extractionPayload) toSignals() Signals {
	signals := Signals{
		Stop:             p.Stop,
		Intent:           coerceIntent(p.Intent),
		Postcode:         normalizeUpperPtr(p.Postcode),
		AngerSignals:     p.AngerSignals,
		SafetyRisk:       p.SafetyRisk,
		Name:             normalizePtr(p.Name),
		AreaOrProperty:   normalizePtr(p.AreaOrProperty),
		CallbackText:     normalizePtr(p.CallbackText),
		IssueDescription: normalizePtr(p.IssueDescription),
		Summary:          normalizePtr(p.Summary),
		UsedNLP:          true,
	}

	if p.Severity != nil {
		switch Severity(strings.ToUpper(strings.TrimSpace(*p.Severity))) {
		case SeverityRoutine, SeverityUrgent, SeverityEmergency:
			s := Severity(strings.ToUpper(strings.TrimSpace(*p.Severity)))
			signals.Severity = &s
		}
	}

	return signals
}

func coerceIntent(raw string) Intent {
	switch Intent(strings.ToUpper(strings.TrimSpace(raw))) {
	case IntentViewing:
		return IntentViewing
	case IntentMaintenance:
		return IntentMaintenance
	case IntentGeneral:
		return IntentGeneral
	default:
		return IntentUnknown
	}
}

func normalizePtr(value *string) *string {
	if value == nil {
		return nil
	}
	normalized := normalizeWhitespace(*value)
	if normalized == "" {
		return nil
	}
	return &normalized
}

func normalizeUpperPtr(value *string) *string {
	if value == nil {
		return nil
	}
	normalized := normalizeWhitespace(strings.ToUpper(*value))
	if normalized == "" {
		return nil
	}
	return &normalized
}
