package alert

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	sent []string
	fail error
}

func (m *fakeMailer) Send(ctx context.Context, subject, body string) error {
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, subject)
	return nil
}

func newTestTracker(t *testing.T, mailer Mailer) *Tracker {
	t.Helper()
	return NewTracker(TrackerOptions{
		StatePath: filepath.Join(t.TempDir(), "attempts.json"),
		Threshold: 3,
		Mailer:    mailer,
	})
}

func TestAlertFiresOnceAtThreshold(t *testing.T) {
	ctx := context.Background()
	mailer := &fakeMailer{}
	tracker := newTestTracker(t, mailer)
	cause := errors.New("login panel never closed")

	require.Equal(t, 1, tracker.RecordFailure(ctx, "cl_banco_estado", cause))
	require.Equal(t, 2, tracker.RecordFailure(ctx, "cl_banco_estado", cause))
	require.Empty(t, mailer.sent)

	require.Equal(t, 3, tracker.RecordFailure(ctx, "cl_banco_estado", cause))
	require.Len(t, mailer.sent, 1)
	require.Contains(t, mailer.sent[0], "cl_banco_estado")
	require.Contains(t, mailer.sent[0], "3 runs in a row")

	// streak keeps growing but the alert stays quiet
	require.Equal(t, 4, tracker.RecordFailure(ctx, "cl_banco_estado", cause))
	require.Len(t, mailer.sent, 1)
}

func TestSuccessResetsAndRearms(t *testing.T) {
	ctx := context.Background()
	mailer := &fakeMailer{}
	tracker := newTestTracker(t, mailer)
	cause := errors.New("boom")

	for i := 0; i < 3; i++ {
		tracker.RecordFailure(ctx, "cl_santander", cause)
	}
	require.Len(t, mailer.sent, 1)

	tracker.RecordSuccess(ctx, "cl_santander")
	require.Equal(t, 0, tracker.Failures("cl_santander"))

	for i := 0; i < 3; i++ {
		tracker.RecordFailure(ctx, "cl_santander", cause)
	}
	require.Len(t, mailer.sent, 2)
}

func TestStreaksAreIndependentPerBank(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t, nil)
	cause := errors.New("boom")

	tracker.RecordFailure(ctx, "cl_banco_chile", cause)
	tracker.RecordFailure(ctx, "cl_banco_chile", cause)
	tracker.RecordFailure(ctx, "cl_santander", cause)

	require.Equal(t, 2, tracker.Failures("cl_banco_chile"))
	require.Equal(t, 1, tracker.Failures("cl_santander"))
	require.Equal(t, 0, tracker.Failures("cl_banco_estado"))
}

func TestStatePersistsAcrossTrackers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "attempts.json")
	cause := errors.New("boom")

	first := NewTracker(TrackerOptions{StatePath: path})
	first.RecordFailure(ctx, "cl_banco_chile", cause)
	first.RecordFailure(ctx, "cl_banco_chile", cause)

	second := NewTracker(TrackerOptions{StatePath: path})
	require.Equal(t, 2, second.Failures("cl_banco_chile"))

	// the file keeps the shape older deployments expect
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Contains(t, decoded["attempts"], "cl_banco_chile")
	require.EqualValues(t, 2, decoded["attempts"]["cl_banco_chile"]["consecutive_failures"])
}

func TestCorruptStateStartsFresh(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "attempts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	tracker := NewTracker(TrackerOptions{StatePath: path})
	require.Equal(t, 0, tracker.Failures("cl_banco_chile"))
	require.Equal(t, 1, tracker.RecordFailure(ctx, "cl_banco_chile", errors.New("x")))
}

func TestMailerFailureDoesNotMarkSent(t *testing.T) {
	ctx := context.Background()
	mailer := &fakeMailer{fail: errors.New("smtp down")}
	tracker := newTestTracker(t, mailer)
	cause := errors.New("boom")

	for i := 0; i < 3; i++ {
		tracker.RecordFailure(ctx, "cl_banco_chile", cause)
	}
	require.Empty(t, mailer.sent)

	// once smtp recovers the next failure delivers the alert
	mailer.fail = nil
	tracker.RecordFailure(ctx, "cl_banco_chile", cause)
	require.Len(t, mailer.sent, 1)
}

func TestSMTPMailerRequiresConfig(t *testing.T) {
	mailer := NewSMTPMailer(SMTPConfig{})
	require.Error(t, mailer.Send(context.Background(), "s", "b"))

	mailer = NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"})
	require.Error(t, mailer.Send(context.Background(), "s", "b"))
}

func TestTrackerDefaults(t *testing.T) {
	tracker := NewTracker(TrackerOptions{})
	require.Equal(t, defaultStatePath, tracker.path)
	require.Equal(t, DefaultThreshold, tracker.threshold)
	require.Nil(t, tracker.mailer)
}
