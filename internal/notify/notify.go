// Package notify emails the results of validation runs that need attention.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"nwsl-backend/internal/components/assert"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/internal/validate"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("nwsl.internal.notify")

const report_notify_send = "notifier.send"

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	Recipients   []string `json:"recipients"`
}

// Sender delivers a composed email.
type Sender func(mail *email.Email) error

// SmtpSender sends through the configured server, falling back on an
// unauthenticated send for servers without AUTH.
func SmtpSender(config SmtpConfig) Sender {
	addr := fmt.Sprintf("%s:%d", config.Server, config.Port)
	return func(mail *email.Email) error {
		err := mail.Send(addr, smtp.PlainAuth("", config.EmailAddress, config.Password, config.Server))
		if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
			return mail.Send(addr, nil)
		}
		return err
	}
}

type Options struct {
	// MinHealth is the health score under which a run is alerted on even
	// when every issue was repaired, defaults to 95.
	MinHealth float64
}

type Notifier struct {
	tel    telemetry.API
	config SmtpConfig
	send   Sender
	opts   Options
}

func NewNotifier(tel telemetry.API, config SmtpConfig, send Sender, opts Options) *Notifier {
	assert.NotNil(tel, "telemetry")
	if send == nil {
		send = SmtpSender(config)
	}
	if opts.MinHealth <= 0 {
		opts.MinHealth = 95
	}
	return &Notifier{
		tel:    telemetry.NewScopedAPI("notify", tel),
		config: config,
		send:   send,
		opts:   opts,
	}
}

// NeedsAttention returns true if a run left inconsistencies behind or its
// health score is under the minimum.
func (n *Notifier) NeedsAttention(run validate.Run) bool {
	if run.Summary.HealthScore < n.opts.MinHealth {
		return true
	}
	for _, check := range run.Checks {
		if check.InconsistentCount > 0 {
			return true
		}
	}
	return false
}

func (n *Notifier) compose(run validate.Run) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("NWSL Consistency <%s>", n.config.EmailAddress)
	mail.To = n.config.Recipients
	mail.Subject = fmt.Sprintf(
		"Consistency run %s: health %.2f%%, %d issues",
		run.StartedAt.Format("2006-01-02 15:04"),
		run.Summary.HealthScore,
		run.Summary.TotalIssues,
	)

	var body bytes.Buffer
	fmt.Fprintf(&body, "Run %s finished at %s.\n\n", run.ID, run.FinishedAt.Format("2006-01-02 15:04:05"))
	run.Render(&body)
	mail.Text = body.Bytes()
	return mail
}

// Alert emails a run that needs attention, it returns false when the run
// did not need one.
func (n *Notifier) Alert(ctx context.Context, run validate.Run) (bool, error) {
	_, span := tracer.Start(ctx, "Alert")
	defer span.End()

	if !n.NeedsAttention(run) {
		return false, nil
	}
	if len(n.config.Recipients) == 0 {
		n.tel.ReportWarning(report_notify_send, "no recipients", run.ID)
		return false, nil
	}

	err := n.send(n.compose(run))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		n.tel.ReportBroken(report_notify_send, err, run.ID)
		return false, err
	}
	return true, nil
}
