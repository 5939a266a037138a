package cron

import (
	"strings"
	"testing"
)

func FuzzParseSchedule(f *testing.F) {
	for _, seed := range []string{
		"*/10 * * * *", "* * * * *", "0 4 * * *", "@every 5m", "@daily",
		"off", "OFF", " off ", "", "invalid", "60 * * * *", "0 25 * * *",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, expr string) {
		sched, err := ParseSchedule(expr)
		disabled := strings.EqualFold(strings.TrimSpace(expr), Disabled)
		if disabled && (sched != nil || err != nil) {
			t.Fatalf("ParseSchedule(%q) = %v, %v; want disabled", expr, sched, err)
		}
		if !disabled && err == nil && sched == nil {
			t.Fatalf("ParseSchedule(%q) returned neither schedule nor error", expr)
		}
	})
}
