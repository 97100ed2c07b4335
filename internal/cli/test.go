package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iyuangang/webservice-monitor/internal/cli/style"
	"github.com/iyuangang/webservice-monitor/internal/models"
	"github.com/iyuangang/webservice-monitor/internal/probe"
)

var (
	testURL     string
	testMethod  string
	testPayload string
	testHeaders string
	testTimeout int
	testRepeat  int
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Probe a URL once or repeatedly, outside of scheduling",
	Long: `Run ad hoc probes against a URL using the same HTTP executor the
scheduler uses, without touching stored configurations or history.`,
	Example: `  webmon test --url https://example.com/health
  webmon test --url https://api.example.com/v1/ping --method POST \
      --payload '{"ping":true}' --headers "Content-Type: application/json" --repeat 5`,
	RunE: runTest,
}

func init() {
	testCmd.Flags().StringVar(&testURL, "url", "", "URL to probe (required)")
	testCmd.Flags().StringVar(&testMethod, "method", "GET", "HTTP method, GET or POST")
	testCmd.Flags().StringVar(&testPayload, "payload", "", "request body for POST")
	testCmd.Flags().StringVar(&testHeaders, "headers", "", `request headers, "Key: Value;Key2: Value2"`)
	testCmd.Flags().IntVar(&testTimeout, "timeout", 10, "per-attempt timeout in seconds")
	testCmd.Flags().IntVar(&testRepeat, "repeat", 1, "number of attempts")
	_ = testCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg := models.MonitorConfig{
		Name:            "ad-hoc",
		URL:             testURL,
		Method:          strings.ToUpper(testMethod),
		Payload:         testPayload,
		Headers:         parseHeaderFlag(testHeaders),
		IntervalSeconds: 60,
		CallsPerBatch:   1,
		TimeoutSeconds:  testTimeout,
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if testRepeat < 1 {
		testRepeat = 1
	}

	ex := probe.New()
	var summary attemptSummary
	for i := 0; i < testRepeat; i++ {
		res := ex.Probe(cmd.Context(), cfg)
		printAttempt(i+1, res)
		summary.add(res)
	}

	fmt.Println()
	rate := summary.rate()
	fmt.Printf("%s %d/%d succeeded (%.0f%%)\n", style.RateDot(rate, true), summary.succeeded, summary.total, rate*100)
	if summary.succeeded > 0 {
		fmt.Printf("  response time avg %.3fs, min %.3fs, max %.3fs\n", summary.avg(), summary.min, summary.max)
	}
	return nil
}

// attemptSummary folds probe outcomes; response-time figures cover successes only.
type attemptSummary struct {
	total, succeeded int
	sum, min, max    float64
}

func (s *attemptSummary) add(res models.ProbeResult) {
	s.total++
	if !res.Success {
		return
	}
	s.succeeded++
	s.sum += res.ResponseTime
	if s.succeeded == 1 || res.ResponseTime < s.min {
		s.min = res.ResponseTime
	}
	if res.ResponseTime > s.max {
		s.max = res.ResponseTime
	}
}

func (s *attemptSummary) rate() float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.succeeded) / float64(s.total)
}

func (s *attemptSummary) avg() float64 {
	if s.succeeded == 0 {
		return 0
	}
	return s.sum / float64(s.succeeded)
}

func printAttempt(n int, res models.ProbeResult) {
	code := "---"
	if res.StatusCode != nil {
		code = fmt.Sprintf("%d", *res.StatusCode)
	}
	if res.Success {
		fmt.Printf("  %s attempt %d: %s in %.3fs\n", style.DotHealthy, n, code, res.ResponseTime)
		return
	}
	fmt.Printf("  %s attempt %d: %s after %.3fs (%s)\n", style.DotUnhealthy, n, code, res.ResponseTime, res.Reason)
}

// parseHeaderFlag splits "Key: Value;Key2: Value2" into a header map.
func parseHeaderFlag(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		k, v, found := strings.Cut(pair, ":")
		if !found {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" {
			headers[k] = v
		}
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
