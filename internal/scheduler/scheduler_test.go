package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"nscan/internal/logging"
)

func TestValidate(t *testing.T) {
	valid := []string{"0 30 15 * * 1-5", "30 15 * * 1-5", "@daily", "@every 1h"}
	for _, spec := range valid {
		if err := Validate(spec); err != nil {
			t.Errorf("Validate(%q) = %v", spec, err)
		}
	}
	for _, spec := range []string{"", "not a schedule", "61 * * * *"} {
		if err := Validate(spec); err == nil {
			t.Errorf("Validate(%q) should fail", spec)
		}
	}
}

func TestScheduler_RegisterAndRunNow(t *testing.T) {
	s := New(context.Background(), zerolog.Nop())

	calls := 0
	if err := s.Register("scan", "30 15 * * 1-5", func(ctx context.Context) error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("bad", "nonsense", func(context.Context) error { return nil }); err == nil {
		t.Error("expected error for invalid spec")
	}

	if err := s.RunNow("scan"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err := s.RunNow("missing"); err == nil {
		t.Error("expected error for unknown job")
	}

	s.Start()
	next := s.Next()
	s.Stop()
	if len(next) != 1 || next[0].IsZero() {
		t.Errorf("next = %v, want one scheduled time", next)
	}
}

func TestScheduler_JobErrorIsReturned(t *testing.T) {
	s := New(context.Background(), zerolog.Nop())
	boom := errors.New("boom")
	if err := s.Register("scan", "@daily", func(context.Context) error { return boom }); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow("scan"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestScheduler_JobContextCarriesLogger(t *testing.T) {
	var buf bytes.Buffer
	s := New(context.Background(), zerolog.New(&buf))
	if err := s.Register("scan", "@daily", func(ctx context.Context) error {
		logger := logging.FromContext(ctx)
		logger.Info().Msg("inside job")
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.RunNow("scan"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "inside job") {
			if !strings.Contains(line, `"job":"scan"`) {
				t.Errorf("job log line missing job field: %s", line)
			}
			return
		}
	}
	t.Errorf("job did not log through the context logger: %s", buf.String())
}
