package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/internal/validate"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"
)

func run(inconsistent int, health float64) validate.Run {
	reports := []validate.Report{{
		CheckName:         validate.CheckXG,
		TotalChecked:      10,
		ConsistentCount:   10 - inconsistent,
		InconsistentCount: inconsistent,
	}}
	summary := validate.Summarize(reports)
	summary.HealthScore = health
	return validate.Run{
		ID:         "run-1",
		StartedAt:  time.Date(2024, time.October, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, time.October, 1, 12, 0, 3, 0, time.UTC),
		Checks:     reports,
		Summary:    summary,
	}
}

func TestAlert(t *testing.T) {
	var sent []*email.Email
	tel := &telemetry.Recorder{}
	n := NewNotifier(tel, SmtpConfig{
		EmailAddress: "alerts@example.com",
		Recipients:   []string{"data@example.com"},
	}, func(mail *email.Email) error {
		sent = append(sent, mail)
		return nil
	}, Options{})
	ctx := context.Background()

	alerted, err := n.Alert(ctx, run(0, 100))
	require.NoError(t, err)
	require.False(t, alerted)
	require.Empty(t, sent)

	alerted, err = n.Alert(ctx, run(2, 98))
	require.NoError(t, err)
	require.True(t, alerted)
	require.Len(t, sent, 1)
	require.Equal(t, []string{"data@example.com"}, sent[0].To)
	require.Contains(t, sent[0].Subject, "2 issues")
	require.Contains(t, string(sent[0].Text), validate.CheckXG)

	// repaired runs are still alerted on when their health is low
	alerted, err = n.Alert(ctx, run(0, 80))
	require.NoError(t, err)
	require.True(t, alerted)
}

func TestAlertFailures(t *testing.T) {
	tel := &telemetry.Recorder{}
	failing := NewNotifier(tel, SmtpConfig{Recipients: []string{"data@example.com"}}, func(*email.Email) error {
		return errors.New("connection refused")
	}, Options{})

	_, err := failing.Alert(context.Background(), run(1, 90))
	require.Error(t, err)
	require.True(t, tel.Has("broken", report_notify_send))

	nobody := NewNotifier(tel, SmtpConfig{}, func(*email.Email) error {
		t.Fatal("nothing should be sent without recipients")
		return nil
	}, Options{})
	alerted, err := nobody.Alert(context.Background(), run(1, 90))
	require.NoError(t, err)
	require.False(t, alerted)
	require.True(t, tel.Has("warning", report_notify_send))
}
