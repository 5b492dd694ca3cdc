package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/inklet/newsletter-backend/util"
)

// SMTPSender is an alternative Sender that submits messages to an SMTP
// relay instead of an HTTP provider. Selected with EMAIL_PROVIDER=smtp.
type SMTPSender struct {
	host     string
	port     string
	sender   string
	username string
	password string
	timeout  time.Duration
}

// MakeSMTPSenderFromEnv initializes an SMTPSender with environment
// variables. Credentials are optional for a local relay.
func MakeSMTPSenderFromEnv() (*SMTPSender, error) {
	varErrs := util.Errors{}
	s := &SMTPSender{
		host:     util.RequireEnv("SMTP_ENDPOINT", &varErrs),
		port:     util.RequireEnv("SMTP_PORT", &varErrs),
		sender:   util.RequireEnv("SMTP_FROM_ADDRESS", &varErrs),
		username: util.EnvOrDefault("SMTP_USERNAME", ""),
		password: util.EnvOrDefault("SMTP_PASSWORD", ""),
		timeout:  10 * time.Second,
	}
	if len(varErrs) > 0 {
		return nil, varErrs
	}
	return s, nil
}

// NewSMTPSender builds a sender for a known relay. Used directly in tests.
func NewSMTPSender(host, port, sender string, timeout time.Duration) *SMTPSender {
	return &SMTPSender{host: host, port: port, sender: sender, timeout: timeout}
}

// Send performs one SMTP submission with a hard deadline on the whole
// exchange. STARTTLS and authentication are negotiated when the server
// offers them.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	addr := net.JoinHostPort(s.host, s.port)
	conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
	if err != nil {
		return &DeliveryError{Kind: classifyTransportError(err), cause: err}
	}
	conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return s.failure(err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return s.failure(err)
		}
	}
	if s.username != "" {
		auth, err := s.selectAuth(client)
		if err != nil {
			return s.failure(err)
		}
		if err := client.Auth(auth); err != nil {
			return s.failure(err)
		}
	}
	if err := client.Mail(s.sender); err != nil {
		return s.failure(err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return s.failure(err)
	}
	w, err := client.Data()
	if err != nil {
		return s.failure(err)
	}
	if _, err := w.Write(formatMessage(s.sender, msg)); err != nil {
		return s.failure(err)
	}
	if err := w.Close(); err != nil {
		return s.failure(err)
	}
	return client.Quit()
}

func (s *SMTPSender) selectAuth(client *smtp.Client) (smtp.Auth, error) {
	ok, auths := client.Extension("AUTH")
	if !ok {
		return nil, fmt.Errorf("remote SMTP server doesn't support any authentication mechanisms")
	}
	if strings.Contains(auths, "PLAIN") {
		return smtp.PlainAuth("", s.username, s.password, s.host), nil
	}
	if strings.Contains(auths, "CRAM-MD5") {
		return smtp.CRAMMD5Auth(s.username, s.password), nil
	}
	return nil, fmt.Errorf("SMTP server doesn't support PLAIN or CRAM-MD5 authentication")
}

// failure maps an SMTP-level error to the shared delivery taxonomy: a
// server reply code is a provider rejection, anything else is transport.
func (s *SMTPSender) failure(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return &DeliveryError{Kind: FailureRejected, Status: protoErr.Code, cause: err}
	}
	return &DeliveryError{Kind: classifyTransportError(err), cause: err}
}

// formatMessage renders a multipart/alternative MIME message carrying both
// body variants.
func formatMessage(from string, msg Message) []byte {
	var buf bytes.Buffer
	mp := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mp.Boundary())

	text, _ := mp.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	fmt.Fprint(text, msg.TextBody)
	html, _ := mp.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
	fmt.Fprint(html, msg.HTMLBody)
	mp.Close()
	return buf.Bytes()
}
