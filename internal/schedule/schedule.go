// Package schedule parses and evaluates schedule documents. A document
// is a small JSON object selecting one of three kinds: a cron
// expression, a fixed interval or a single future timestamp.
package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

const (
	KindCron     = "cron"
	KindInterval = "interval"
	KindOnce     = "once"
)

type Spec struct {
	Kind       string `json:"kind"`
	CronExpr   string `json:"cron_expr,omitempty"`
	IntervalMs int64  `json:"interval_ms,omitempty"`
	AtMs       int64  `json:"at_ms,omitempty"`
}

func Parse(raw string) (*Spec, error) {
	var s Spec
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	return &s, nil
}

// Next returns the next run time after now, or nil when the spec yields
// no further runs (an elapsed once schedule, or an invalid spec).
func (s *Spec) Next(now time.Time) *time.Time {
	switch s.Kind {
	case KindCron:
		next, err := gronx.NextTickAfter(s.CronExpr, now, false)
		if err != nil {
			return nil
		}
		return &next
	case KindInterval:
		if s.IntervalMs <= 0 {
			return nil
		}
		next := now.Add(time.Duration(s.IntervalMs) * time.Millisecond)
		return &next
	case KindOnce:
		at := time.UnixMilli(s.AtMs)
		if !at.After(now) {
			return nil
		}
		return &at
	default:
		return nil
	}
}

// NextRun evaluates a raw schedule document against the current time.
// Invalid documents yield nil, never an error.
func NextRun(raw string) *time.Time {
	s, err := Parse(raw)
	if err != nil {
		return nil
	}
	return s.Next(time.Now())
}

// Normalize accepts either a schedule document or a bare cron
// expression and returns a validated document. Bare cron expressions
// are wrapped.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	var s Spec
	if err := json.Unmarshal([]byte(raw), &s); err == nil && s.Kind != "" {
		switch s.Kind {
		case KindCron:
			if !gronx.New().IsValid(s.CronExpr) {
				return "", fmt.Errorf("invalid cron expression: %s", s.CronExpr)
			}
		case KindInterval:
			if s.IntervalMs <= 0 {
				return "", fmt.Errorf("interval_ms must be positive")
			}
		case KindOnce:
			if s.AtMs <= 0 {
				return "", fmt.Errorf("at_ms must be positive")
			}
		default:
			return "", fmt.Errorf("unknown schedule kind: %s", s.Kind)
		}
		return raw, nil
	}

	if !gronx.New().IsValid(raw) {
		return "", fmt.Errorf("not a schedule document or cron expression: %s", raw)
	}

	data, err := json.Marshal(Spec{Kind: KindCron, CronExpr: raw})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Describe renders a schedule document for display.
func Describe(raw string) string {
	s, err := Parse(raw)
	if err != nil {
		return raw
	}

	switch s.Kind {
	case KindCron:
		return "cron " + s.CronExpr
	case KindInterval:
		d := time.Duration(s.IntervalMs) * time.Millisecond
		switch {
		case d >= time.Hour && d%time.Hour == 0:
			if h := int(d.Hours()); h == 1 {
				return "every hour"
			} else {
				return fmt.Sprintf("every %d hours", h)
			}
		case d%time.Minute == 0:
			if m := int(d.Minutes()); m == 1 {
				return "every minute"
			} else {
				return fmt.Sprintf("every %d minutes", m)
			}
		default:
			return fmt.Sprintf("every %d seconds", int(d.Seconds()))
		}
	case KindOnce:
		return "once at " + time.UnixMilli(s.AtMs).Format("Jan 2 15:04")
	default:
		return raw
	}
}
