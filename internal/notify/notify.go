// Package notify alerts clinic staff when an intake session escalates.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Notifier delivers escalation alerts to staff.
type Notifier interface {
	NotifyEscalation(ctx context.Context, sessionID, reason, detail string) error
}

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string
	StaffNumber string
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithStaffNumber sets the on-call staff phone number that receives alerts.
func WithStaffNumber(to string) Option {
	return func(o *Opts) { o.StaffNumber = to }
}

// TwilioNotifier texts the on-call staff number via the Twilio API.
type TwilioNotifier struct {
	client      *twilio.RestClient
	fromNumber  string
	staffNumber string
}

// NewTwilioNotifier creates a Twilio-backed notifier. Options fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER, and
// STAFF_ALERT_NUMBER environment variables.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.StaffNumber == "" {
		cfg.StaffNumber = os.Getenv("STAFF_ALERT_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "",
		"StaffNumber_set", cfg.StaffNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" || cfg.StaffNumber == "" {
		return nil, fmt.Errorf("from and staff numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &TwilioNotifier{
		client:      client,
		fromNumber:  cfg.FromNumber,
		staffNumber: cfg.StaffNumber,
	}, nil
}

// NotifyEscalation texts the escalation detail to the staff number.
func (n *TwilioNotifier) NotifyEscalation(ctx context.Context, sessionID, reason, detail string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.staffNumber)
	params.SetFrom(n.fromNumber)
	params.SetBody(detail)

	_, err := n.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioNotifier.NotifyEscalation: failed to send alert",
			"sessionID", sessionID, "reason", reason, "error", err)
		return fmt.Errorf("failed to send escalation alert for %s: %w", sessionID, err)
	}

	slog.Info("TwilioNotifier.NotifyEscalation: alert sent", "sessionID", sessionID, "reason", reason)
	return nil
}

// NoopNotifier logs escalations without sending anything. Used when Twilio
// credentials are not configured.
type NoopNotifier struct{}

// NotifyEscalation logs the escalation and returns nil.
func (NoopNotifier) NotifyEscalation(ctx context.Context, sessionID, reason, detail string) error {
	slog.Info("NoopNotifier.NotifyEscalation: escalation recorded", "sessionID", sessionID, "reason", reason)
	return nil
}
