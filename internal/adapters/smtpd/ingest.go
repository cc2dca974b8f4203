package smtpd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/core"
)

// Listener is an SMTP ingest surface for the pipeline: each delivered
// message is run through extraction, stamped with result headers, and
// optionally relayed to an upstream host
type Listener struct {
	service          *core.ExtractionService
	logger           *zap.Logger
	listenAddr       string
	server           *smtp.Server
	relayAddr        string
	relayPort        int
	statusHeader     string
	serviceHeader    string
	confidenceHeader string
}

// NewListener creates a new SMTP ingest listener
func NewListener(
	service *core.ExtractionService,
	logger *zap.Logger,
	listenAddr string,
	relayAddr string,
	relayPort int,
	statusHeader string,
	serviceHeader string,
	confidenceHeader string,
) *Listener {
	return &Listener{
		service:          service,
		logger:           logger,
		listenAddr:       listenAddr,
		relayAddr:        relayAddr,
		relayPort:        relayPort,
		statusHeader:     statusHeader,
		serviceHeader:    serviceHeader,
		confidenceHeader: confidenceHeader,
	}
}

// Start starts the SMTP listener
func (l *Listener) Start() error {
	l.server = smtp.NewServer(&smtpBackend{listener: l})

	l.server.Addr = l.listenAddr
	l.server.Domain = "localhost"
	l.server.ReadTimeout = 30 * time.Second
	l.server.WriteTimeout = 30 * time.Second
	l.server.MaxMessageBytes = 30 * 1024 * 1024
	l.server.MaxRecipients = 50
	l.server.AllowInsecureAuth = true

	l.logger.Info("SMTP ingest listener starting", zap.String("address", l.listenAddr))

	go func() {
		if err := l.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				l.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP listener
func (l *Listener) Stop() error {
	if l.server != nil {
		return l.server.Close()
	}
	return nil
}

// relay forwards the annotated message to the upstream host
func (l *Listener) relay(sender string, recipients []string, emailData []byte) error {
	addr := fmt.Sprintf("%s:%d", l.relayAddr, l.relayPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to relay host: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			l.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		l.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	listener *Listener
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		listener:   b.listener,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	listener   *Listener
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed for ingest)
func (s *smtpSession) AuthPlain(_, _ string) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Logout ends the session
func (s *smtpSession) Logout() error {
	return nil
}

// Data runs the delivered message through the extraction pipeline
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.listener.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.listener.logger.Error("Failed to parse email message", zap.Error(err))
		return err
	}

	textContent, err := extractTextFromMessage(parsed)
	if err != nil {
		s.listener.logger.Error("Failed to extract text content", zap.Error(err))
		return err
	}

	receivedAt := time.Now()
	if date, err := parsed.Header.Date(); err == nil {
		receivedAt = date
	}

	msg := &core.EmailMessage{
		ID:            messageID(parsed, s.sender, receivedAt),
		Subject:       parsed.Header.Get("Subject"),
		SenderAddress: s.sender,
		Body:          textContent,
		ReceivedAt:    receivedAt,
	}
	if addr, err := mail.ParseAddress(parsed.Header.Get("From")); err == nil {
		msg.SenderName = addr.Name
		if msg.SenderAddress == "" {
			msg.SenderAddress = addr.Address
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, decision := s.listener.service.ProcessMessage(ctx, msg)

	s.listener.logger.Info("Processed ingested message",
		zap.String("message_id", msg.ID),
		zap.String("outcome", string(decision.Outcome)),
		zap.String("reason", decision.Reason),
		zap.Float64("confidence", result.Confidence))

	if s.listener.relayAddr == "" {
		return nil
	}

	annotated := s.annotate(rawData, result, decision)
	if err := s.listener.relay(s.sender, s.recipients, annotated); err != nil {
		s.listener.logger.Error("Failed to relay message", zap.Error(err))
		return err
	}
	return nil
}

// annotate prepends the result headers to the raw message
func (s *smtpSession) annotate(rawData []byte, result *core.ExtractionResult, decision core.Decision) []byte {
	var headers strings.Builder
	fmt.Fprintf(&headers, "%s: %s (%s)\r\n", s.listener.statusHeader, decision.Outcome, decision.Reason)
	if result.ServiceName != nil {
		fmt.Fprintf(&headers, "%s: %s\r\n", s.listener.serviceHeader, result.ServiceName.Value)
	}
	fmt.Fprintf(&headers, "%s: %.4f\r\n", s.listener.confidenceHeader, result.Confidence)

	return append([]byte(headers.String()), rawData...)
}

// messageID prefers the Message-Id header and falls back to a
// sender+timestamp identifier
func messageID(parsed *mail.Message, sender string, receivedAt time.Time) string {
	if id := strings.Trim(parsed.Header.Get("Message-Id"), "<> "); id != "" {
		return id
	}
	return fmt.Sprintf("%s-%d", sender, receivedAt.UnixNano())
}
