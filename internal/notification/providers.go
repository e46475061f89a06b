package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ResendEmailProvider sends email through the Resend API
type ResendEmailProvider struct {
	client *resend.Client
	from   string
}

// NewResendEmailProvider creates an email provider for apiKey
func NewResendEmailProvider(apiKey, from string) *ResendEmailProvider {
	return &ResendEmailProvider{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// Send sends an email
func (p *ResendEmailProvider) Send(ctx context.Context, intent Intent) error {
	if intent.To == "" {
		return fmt.Errorf("no email address provided")
	}

	params := &resend.SendEmailRequest{
		From:    p.from,
		To:      []string{intent.To},
		Subject: intent.Subject,
		Text:    intent.Body,
	}

	if _, err := p.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// TwilioWhatsAppProvider sends WhatsApp messages through the Twilio Messages API
type TwilioWhatsAppProvider struct {
	httpClient *resty.Client
	accountSID string
	from       string
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewTwilioWhatsAppProvider creates a WhatsApp provider. from is the sender number.
func NewTwilioWhatsAppProvider(baseURL, accountSID, authToken, from string) *TwilioWhatsAppProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetBasicAuth(accountSID, authToken).
		SetHeader("Accept", "application/json")

	return &TwilioWhatsAppProvider{
		httpClient: client,
		accountSID: accountSID,
		from:       WhatsAppAddress(from),
	}
}

// Send sends a WhatsApp message
func (p *TwilioWhatsAppProvider) Send(ctx context.Context, intent Intent) error {
	if intent.To == "" {
		return fmt.Errorf("no whatsapp number provided")
	}

	var apiErr twilioError
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"From": p.from,
			"To":   WhatsAppAddress(intent.To),
			"Body": intent.Body,
		}).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", p.accountSID))
	if err != nil {
		return fmt.Errorf("twilio: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("twilio: status %d: %s (code %d)", resp.StatusCode(), apiErr.Message, apiErr.Code)
	}
	return nil
}

// ConsoleProvider logs notifications instead of sending them (for development)
type ConsoleProvider struct {
	logger *zap.Logger
}

// NewConsoleProvider creates a console logging provider
func NewConsoleProvider(logger *zap.Logger) *ConsoleProvider {
	return &ConsoleProvider{logger: logger.Named("console_notifier")}
}

// Send logs the intent
func (p *ConsoleProvider) Send(ctx context.Context, intent Intent) error {
	p.logger.Info("notification",
		zap.String("channel", string(intent.Channel)),
		zap.String("to", maskAddress(intent.To)),
		zap.String("subject", intent.Subject),
	)
	return nil
}

// MockProvider records intents for tests
type MockProvider struct {
	mu         sync.RWMutex
	sent       []Intent
	failOnSend bool
	failures   int
}

// NewMockProvider creates a new mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Send records the intent, or fails when configured to
func (p *MockProvider) Send(ctx context.Context, intent Intent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failOnSend {
		p.failures++
		return fmt.Errorf("mock send failure")
	}
	p.sent = append(p.sent, intent)
	return nil
}

// SetFailOnSend sets whether Send should fail
func (p *MockProvider) SetFailOnSend(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOnSend = fail
}

// Sent returns the recorded intents
func (p *MockProvider) Sent() []Intent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Intent(nil), p.sent...)
}

// Failures returns how many sends failed
func (p *MockProvider) Failures() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failures
}

// maskAddress keeps enough of an address to debug delivery without logging it whole
func maskAddress(addr string) string {
	if at := strings.IndexByte(addr, '@'); at > 1 {
		return addr[:1] + "***" + addr[at:]
	}
	if len(addr) > 4 {
		return "***" + addr[len(addr)-4:]
	}
	return "***"
}
