package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/inklet/newsletter-backend/util"
)

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender wraps a back-end that can send e-mails. Exactly one delivery
// attempt is made per call; retrying is the caller's business.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// FailureKind classifies a delivery failure.
type FailureKind int

// Possible values for FailureKind.
const (
	// FailureTimeout: the provider did not respond within the configured bound.
	FailureTimeout FailureKind = iota
	// FailureRejected: the provider responded with a non-2xx status.
	FailureRejected
	// FailureTransport: the request never completed at the network level.
	FailureTransport
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureRejected:
		return "rejected"
	default:
		return "transport"
	}
}

// DeliveryError reports why a send failed. Status is only meaningful for
// FailureRejected.
type DeliveryError struct {
	Kind   FailureKind
	Status int
	cause  error
}

func (e *DeliveryError) Error() string {
	if e.Kind == FailureRejected {
		return fmt.Sprintf("email provider rejected the message with status %d", e.Status)
	}
	return fmt.Sprintf("email delivery failed (%s): %v", e.Kind, e.cause)
}

func (e *DeliveryError) Unwrap() error { return e.cause }

// Config stores variables needed to submit emails to the provider.
type Config struct {
	ProviderURL string
	Sender      string
	// AuthToken authenticates us to the provider. It travels in a request
	// header and must never be logged.
	AuthToken string
	Timeout   time.Duration
}

// MakeConfigFromEnv initializes our email config object with
// environment variables.
func MakeConfigFromEnv() (Config, error) {
	varErrs := util.Errors{}
	c := Config{
		ProviderURL: util.RequireEnv("EMAIL_PROVIDER_URL", &varErrs),
		Sender:      util.RequireEnv("EMAIL_SENDER_ADDRESS", &varErrs),
		AuthToken:   util.RequireEnv("EMAIL_AUTH_TOKEN", &varErrs),
	}
	timeoutMs, err := strconv.Atoi(util.EnvOrDefault("EMAIL_SEND_TIMEOUT_MS", "10000"))
	if err != nil || timeoutMs <= 0 {
		varErrs.Add(fmt.Errorf("EMAIL_SEND_TIMEOUT_MS must be a positive integer"))
	}
	c.Timeout = time.Duration(timeoutMs) * time.Millisecond
	if len(varErrs) > 0 {
		return c, varErrs
	}
	return c, nil
}

// Client submits messages to a Postmark-style transactional email API.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient builds a provider client. The underlying http.Client is reused
// across sends; its timeout bounds every attempt.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// sendEmailRequest is the provider's wire format.
type sendEmailRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HTMLBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// Send issues a single POST to the provider's /email endpoint. Any 2xx
// response counts as success.
func (c *Client) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(sendEmailRequest{
		From:     c.cfg.Sender,
		To:       msg.To,
		Subject:  msg.Subject,
		HTMLBody: msg.HTMLBody,
		TextBody: msg.TextBody,
	})
	if err != nil {
		return &DeliveryError{Kind: FailureTransport, cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.ProviderURL+"/email", bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Kind: FailureTransport, cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.cfg.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return &DeliveryError{Kind: classifyTransportError(err), cause: err}
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{Kind: FailureRejected, Status: resp.StatusCode}
	}
	return nil
}

func classifyTransportError(err error) FailureKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureTransport
}
