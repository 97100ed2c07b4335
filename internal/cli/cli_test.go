package cli

import (
	"math"
	"testing"

	"github.com/iyuangang/webservice-monitor/internal/models"
)

func TestParseHeaderFlag(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
	}{
		{"empty", "", nil},
		{"single", "Content-Type: application/json", map[string]string{"Content-Type": "application/json"}},
		{"multiple", "Accept: text/html;X-Token: abc123", map[string]string{"Accept": "text/html", "X-Token": "abc123"}},
		{"padded", "  Accept :  */* ; ", map[string]string{"Accept": "*/*"}},
		{"value with colon", "Authorization: Bearer a:b:c", map[string]string{"Authorization": "Bearer a:b:c"}},
		{"garbage ignored", "no-separator-here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseHeaderFlag(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("parseHeaderFlag(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("header %q = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestAttemptSummaryCountsSuccessesOnly(t *testing.T) {
	ok := func(rt float64) models.ProbeResult {
		return models.ProbeResult{Success: true, ResponseTime: rt}
	}
	fail := models.ProbeResult{Success: false, ResponseTime: 9.9, Reason: models.FailureTimeout}

	var s attemptSummary
	for _, res := range []models.ProbeResult{ok(0.4), fail, ok(0.2)} {
		s.add(res)
	}

	if s.total != 3 || s.succeeded != 2 {
		t.Fatalf("total=%d succeeded=%d, want 3/2", s.total, s.succeeded)
	}
	if got := s.rate(); got != 2.0/3.0 {
		t.Errorf("rate = %v, want 2/3", got)
	}
	if got := s.avg(); math.Abs(got-0.3) > 1e-9 {
		t.Errorf("avg = %v, want 0.3 (failure time must not contribute)", got)
	}
	if s.min != 0.2 || s.max != 0.4 {
		t.Errorf("min=%v max=%v, want 0.2/0.4", s.min, s.max)
	}

	var empty attemptSummary
	empty.add(fail)
	if empty.rate() != 0 || empty.avg() != 0 {
		t.Errorf("all-failure summary rate=%v avg=%v, want 0/0", empty.rate(), empty.avg())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 20); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("a-very-long-configuration-name", 10); len([]rune(got)) != 10 {
		t.Errorf("truncate length = %d (%q), want 10", len([]rune(got)), got)
	}
}
