package schedule

import (
	"fmt"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	s, err := Parse(`{"kind":"cron","cron_expr":"0 9 * * *"}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if s.Kind != KindCron || s.CronExpr != "0 9 * * *" {
		t.Errorf("unexpected spec: %+v", s)
	}

	if _, err := Parse(`not json`); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestNextInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Spec{Kind: KindInterval, IntervalMs: 60000}

	next := s.Next(now)
	if next == nil {
		t.Fatal("expected next run, got nil")
	}
	if want := now.Add(time.Minute); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	if (&Spec{Kind: KindInterval}).Next(now) != nil {
		t.Error("zero interval should yield no next run")
	}
}

func TestNextOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	future := &Spec{Kind: KindOnce, AtMs: now.Add(time.Hour).UnixMilli()}
	if next := future.Next(now); next == nil || !next.Equal(now.Add(time.Hour)) {
		t.Errorf("future once: next = %v", next)
	}

	past := &Spec{Kind: KindOnce, AtMs: now.Add(-time.Hour).UnixMilli()}
	if past.Next(now) != nil {
		t.Error("elapsed once schedule should yield no next run")
	}
}

func TestNextCron(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	s := &Spec{Kind: KindCron, CronExpr: "0 * * * *"}

	next := s.Next(now)
	if next == nil {
		t.Fatal("expected next run, got nil")
	}
	if !next.After(now) {
		t.Errorf("next = %v, not after %v", next, now)
	}
	if next.Minute() != 0 {
		t.Errorf("next minute = %d, want 0", next.Minute())
	}

	if (&Spec{Kind: KindCron, CronExpr: "bad"}).Next(now) != nil {
		t.Error("invalid cron should yield no next run")
	}
}

func TestNextRunInvalid(t *testing.T) {
	if NextRun(`invalid json`) != nil {
		t.Error("expected nil for invalid document")
	}
	if NextRun(`{"kind":"bogus"}`) != nil {
		t.Error("expected nil for unknown kind")
	}
}

func TestNormalizeBareCron(t *testing.T) {
	result, err := Normalize("  0 9 * * *  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := Parse(result)
	if err != nil {
		t.Fatalf("result not a document: %v", err)
	}
	if s.Kind != KindCron || s.CronExpr != "0 9 * * *" {
		t.Errorf("unexpected spec: %+v", s)
	}
}

func TestNormalizePassthrough(t *testing.T) {
	for _, input := range []string{
		`{"kind":"cron","cron_expr":"0 9 * * *"}`,
		`{"kind":"interval","interval_ms":300000}`,
		fmt.Sprintf(`{"kind":"once","at_ms":%d}`, time.Now().Add(time.Hour).UnixMilli()),
	} {
		result, err := Normalize(input)
		if err != nil {
			t.Errorf("Normalize(%s): %v", input, err)
			continue
		}
		if result != input {
			t.Errorf("Normalize(%s) = %s, want passthrough", input, result)
		}
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, input := range []string{
		"not a cron",
		`{"kind":"cron","cron_expr":"bad"}`,
		`{"kind":"interval","interval_ms":0}`,
		`{"kind":"bogus"}`,
	} {
		if _, err := Normalize(input); err == nil {
			t.Errorf("Normalize(%s) accepted invalid input", input)
		}
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"kind":"interval","interval_ms":3600000}`, "every hour"},
		{`{"kind":"interval","interval_ms":7200000}`, "every 2 hours"},
		{`{"kind":"interval","interval_ms":300000}`, "every 5 minutes"},
		{`{"kind":"cron","cron_expr":"0 9 * * *"}`, "cron 0 9 * * *"},
		{`garbage`, "garbage"},
	}
	for _, tc := range cases {
		if got := Describe(tc.raw); got != tc.want {
			t.Errorf("Describe(%s) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
