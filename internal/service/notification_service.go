package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/observability"
)

// Message is an outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer records deliveries in the log. Bodies carry secrets and are
// never written.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email queued",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)))
	return nil
}

// NotificationService turns domain events into emails.
type NotificationService struct {
	dispatcher events.Dispatcher
	mailer     Mailer
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, mailer Mailer, metrics *observability.Metrics, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		mailer:     mailer,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventUserRegistered, n.handleUserRegistered)
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handlePasswordResetRequested)
	n.dispatcher.Subscribe(events.EventPasswordChanged, n.handlePasswordChanged)
	n.dispatcher.Subscribe(events.EventAccountSuspended, n.handleAccountSuspended)
	n.dispatcher.Subscribe(events.EventAccountReactivated, n.handleAccountReactivated)
	n.dispatcher.Subscribe(events.EventAccountRecoveryInitiated, n.handleAccountRecoveryInitiated)
	n.dispatcher.Subscribe(events.EventTwoFactorEnabled, n.handleTwoFactorChanged)
	n.dispatcher.Subscribe(events.EventTwoFactorDisabled, n.handleTwoFactorChanged)
	n.dispatcher.Subscribe(events.EventBackupCodesGenerated, n.handleTwoFactorChanged)
	n.dispatcher.Subscribe(events.EventLoginAlert, n.handleLoginAlert)
}

func (n *NotificationService) handleUserRegistered(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.UserRegisteredPayload)
	if !ok {
		return n.unexpected(event)
	}
	return n.send(ctx, event, p.Email, "Welcome", fmt.Sprintf("Hello %s, your %s account is ready.", p.Name, p.Role))
}

func (n *NotificationService) handlePasswordResetRequested(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.PasswordResetRequestedPayload)
	if !ok {
		return n.unexpected(event)
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(n.cfg.AppBaseURL, "/"), p.Token)
	body := fmt.Sprintf("Hello %s,\n\nUse the link below to reset your password. It expires at %s.\n\n%s\n",
		p.Name, p.ExpiresAt.Format("2006-01-02 15:04 MST"), link)
	return n.send(ctx, event, p.Email, "Password reset request", body)
}

func (n *NotificationService) handlePasswordChanged(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.PasswordChangedPayload)
	if !ok {
		return n.unexpected(event)
	}
	body := fmt.Sprintf("Hello %s,\n\nYour password was changed.", p.Name)
	if p.ByAdmin {
		body = fmt.Sprintf("Hello %s,\n\nAn administrator reset your password.", p.Name)
		if p.TemporaryPassword != "" {
			body += fmt.Sprintf(" Your temporary password is: %s\nPlease change it after signing in.", p.TemporaryPassword)
		}
	}
	return n.send(ctx, event, p.Email, "Your password was changed", body)
}

func (n *NotificationService) handleAccountSuspended(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.AccountSuspendedPayload)
	if !ok {
		return n.unexpected(event)
	}
	until := "until further notice"
	if p.EndsAt != nil {
		until = "until " + p.EndsAt.Format("2006-01-02")
	}
	body := fmt.Sprintf("Hello %s,\n\nYour account has been suspended %s.\nReason: %s (%s)", p.Name, until, p.Reason, p.Category)
	return n.send(ctx, event, p.Email, "Account suspended", body)
}

func (n *NotificationService) handleAccountReactivated(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.AccountReactivatedPayload)
	if !ok {
		return n.unexpected(event)
	}
	return n.send(ctx, event, p.Email, "Account reactivated", fmt.Sprintf("Hello %s,\n\nYour account is active again.", p.Name))
}

func (n *NotificationService) handleAccountRecoveryInitiated(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.AccountRecoveryPayload)
	if !ok {
		return n.unexpected(event)
	}
	link := fmt.Sprintf("%s/account-recovery?token=%s", strings.TrimRight(n.cfg.AppBaseURL, "/"), p.Token)
	body := fmt.Sprintf("Hello %s,\n\nAccount recovery was requested. Answer your security questions at the link below before %s.\n\n%s\n",
		p.Name, p.ExpiresAt.Format("2006-01-02 15:04 MST"), link)

	var errs []error
	if err := n.send(ctx, event, p.Email, "Account recovery", body); err != nil {
		errs = append(errs, err)
	}
	if p.RecoveryEmail != "" && !strings.EqualFold(p.RecoveryEmail, p.Email) {
		if err := n.send(ctx, event, p.RecoveryEmail, "Account recovery", body); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (n *NotificationService) handleTwoFactorChanged(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TwoFactorPayload)
	if !ok {
		return n.unexpected(event)
	}
	var subject, body string
	switch event.Type {
	case events.EventTwoFactorEnabled:
		subject, body = "Two-factor authentication enabled", "Two-factor authentication is now enabled on your account."
	case events.EventTwoFactorDisabled:
		subject, body = "Two-factor authentication disabled", "Two-factor authentication was disabled on your account."
	default:
		subject = "New backup codes generated"
		body = fmt.Sprintf("%d new backup codes were generated. Previous codes no longer work.", p.Remaining)
	}
	return n.send(ctx, event, p.Email, subject, fmt.Sprintf("Hello %s,\n\n%s", p.Name, body))
}

func (n *NotificationService) handleLoginAlert(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.LoginAlertPayload)
	if !ok {
		return n.unexpected(event)
	}
	subject := "New sign-in to your account"
	if p.NewDevice {
		subject = "Sign-in from a new device"
	}
	body := fmt.Sprintf("Hello %s,\n\nYour account was accessed.\nBrowser: %s\nOS: %s\nIP: %s\n",
		p.Name, p.Device.Browser, p.Device.OS, p.Device.IP)
	if p.BackupCode {
		body += "A backup code was used for this sign-in.\n"
	}
	return n.send(ctx, event, p.Email, subject, body)
}

func (n *NotificationService) send(ctx context.Context, event events.Event, to, subject, body string) error {
	if n.mailer == nil || strings.TrimSpace(to) == "" {
		return nil
	}
	err := n.mailer.Send(ctx, Message{From: n.cfg.EmailFrom, To: to, Subject: subject, Body: body})
	n.metrics.RecordNotification(string(event.Type), err == nil)
	if err != nil {
		return fmt.Errorf("send %s notification: %w", event.Type, err)
	}
	return nil
}

func (n *NotificationService) unexpected(event events.Event) error {
	n.logger.Warn("unexpected notification payload",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID))
	return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
}
