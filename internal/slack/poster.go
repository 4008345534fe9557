package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// EmergencyNumbers are the Indian emergency lines quoted in every alert.
const EmergencyNumbers = "102 (ambulance), 108 (emergency), 112 (national helpline)"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostEmergency posts an alert for a message that matched an emergency
// keyword. The excerpt is the user's own wording; no patient details are sent.
func (p *Poster) PostEmergency(ctx context.Context, sessionID, keyword, excerpt string) error {
	text := formatEmergencyMessage(sessionID, keyword, excerpt)

	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "Keyword match only. Verify before acting. Emergency lines: " + EmergencyNumbers,
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	ts, err := p.post(ctx, body)
	if err != nil {
		return err
	}
	p.logger.Info("posted emergency alert to slack", "ts", ts, "session_id", sessionID)
	return nil
}

func (p *Poster) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatEmergencyMessage(sessionID, keyword, excerpt string) string {
	var sb strings.Builder
	sb.WriteString(":rotating_light: *Possible emergency in an intake session*\n")
	fmt.Fprintf(&sb, "*Session:* %s\n", sessionID)
	fmt.Fprintf(&sb, "*Matched:* %s\n", keyword)
	if excerpt != "" {
		fmt.Fprintf(&sb, "> %s\n", strings.ReplaceAll(excerpt, "\n", "\n> "))
	}
	sb.WriteString("The user was shown emergency numbers " + EmergencyNumbers + ".")
	return sb.String()
}
