package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/iyuangang/webservice-monitor/internal/models"
)

const (
	defaultUserAgent = "webmon/1.0"
	maxDrainBytes    = 1 << 20
)

// Executor performs a single HTTP check and turns whatever happened into a
// ProbeResult. Failures are outcomes, not errors: Probe never returns one.
type Executor struct {
	Client    *http.Client
	SuccessLo int
	SuccessHi int

	now func() time.Time
}

func New() *Executor {
	return &Executor{
		Client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		SuccessLo: 200,
		SuccessHi: 299,
		now:       time.Now,
	}
}

// Probe issues one attempt against cfg with the config's own timeout. The
// response time covers the full exchange including reading the body; no
// retries happen at this level.
func (e *Executor) Probe(ctx context.Context, cfg models.MonitorConfig) models.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	start := e.now()
	res := models.ProbeResult{
		ConfigID: cfg.ID,
		TS:       start.UTC(),
		Reason:   models.FailureNone,
	}

	var body io.Reader
	if cfg.Payload != "" {
		body = strings.NewReader(cfg.Payload)
	}
	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, body)
	if err != nil {
		res.Reason = models.FailureTransport
		res.ResponseTime = e.now().Sub(start).Seconds()
		return res
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		res.Reason = classify(err)
		res.ResponseTime = e.now().Sub(start).Seconds()
		return res
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
	res.ResponseTime = e.now().Sub(start).Seconds()

	code := resp.StatusCode
	res.StatusCode = &code
	if code >= e.SuccessLo && code <= e.SuccessHi {
		res.Success = true
	} else {
		res.Reason = models.FailureHTTP
	}
	return res
}

// classify buckets a transport-level error. Timeouts win over everything
// else; name resolution, dialing and certificate trouble count as failure to
// reach the endpoint.
func classify(err error) models.FailureReason {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return models.FailureTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailureTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.FailureConn
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return models.FailureConn
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return models.FailureConn
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return models.FailureConn
	}
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certInvalid) {
		return models.FailureConn
	}
	var recordHeader tls.RecordHeaderError
	if errors.As(err, &recordHeader) {
		return models.FailureConn
	}

	return models.FailureTransport
}
