package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectEmergency carries EmergencyEvent when a message matches an emergency keyword.
	SubjectEmergency = "arogya.intake.emergency"
	// SubjectReportGenerated carries ReportEvent when a report is assembled.
	SubjectReportGenerated = "arogya.report.generated"
	// SubjectRegistered carries Registration when the service starts.
	SubjectRegistered = "arogya.agent.registered"
)

// EmergencyEvent is published once per message that matches an emergency
// keyword. It never carries patient details.
type EmergencyEvent struct {
	SessionID  string    `json:"session_id"`
	Keyword    string    `json:"keyword"`
	Language   string    `json:"language"`
	DetectedAt time.Time `json:"detected_at"`
}

// ReportEvent is published when a report is assembled.
type ReportEvent struct {
	SessionID   string    `json:"session_id"`
	ReportID    string    `json:"report_id"`
	Language    string    `json:"language"`
	Sections    int       `json:"sections"`
	Emergency   bool      `json:"emergency"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Registration announces a running instance.
type Registration struct {
	Service   string   `json:"service"`
	Providers []string `json:"providers"`
	PDF       bool     `json:"pdf"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("arogya"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish sends data as JSON.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Drain flushes pending publishes and closes the connection.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

func (c *Client) Close() {
	c.conn.Close()
}
