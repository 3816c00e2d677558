package timeintegrity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/beevik/ntp"
)

// Source returns authoritative UTC time.
type Source interface {
	Now(ctx context.Context) (time.Time, error)
}

// SystemSource trusts the server's own (NTP-disciplined) clock.
type SystemSource struct{}

func (SystemSource) Now(context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}

// NTPSource queries an NTP server.
type NTPSource struct {
	Host    string
	Timeout time.Duration
}

func (s NTPSource) Now(ctx context.Context) (time.Time, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return time.Time{}, context.DeadlineExceeded
	}

	resp, err := ntp.QueryWithOptions(s.Host, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return time.Time{}, fmt.Errorf("ntp query %s: %w", s.Host, err)
	}
	if err := resp.Validate(); err != nil {
		return time.Time{}, fmt.Errorf("ntp response from %s: %w", s.Host, err)
	}
	return time.Now().Add(resp.ClockOffset).UTC(), nil
}

// HTTPSource reads the Date header of an HTTP endpoint.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Now(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("build time request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("time request: %w", err)
	}
	defer resp.Body.Close()

	date := resp.Header.Get("Date")
	if date == "" {
		return time.Time{}, fmt.Errorf("time source %s returned no Date header", s.URL)
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse Date header: %w", err)
	}
	return t.UTC(), nil
}

// Checker runs Policy.Validate against a live Source.
type Checker struct {
	policy  Policy
	source  Source
	timeout time.Duration
}

func NewChecker(policy Policy, source Source, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Checker{policy: policy, source: source, timeout: timeout}
}

// Check validates deviceTime. An unreachable source degrades to the reasonableness check.
func (c *Checker) Check(ctx context.Context, autoSyncEnabled bool, deviceTime time.Time) Result {
	var authoritative *int64
	if c.source != nil {
		sctx, cancel := context.WithTimeout(ctx, c.timeout)
		now, err := c.source.Now(sctx)
		cancel()
		if err != nil {
			slog.Warn("Time source unreachable, falling back to reasonableness check", "error", err)
		} else {
			ms := now.UnixMilli()
			authoritative = &ms
		}
	}
	return c.policy.Validate(autoSyncEnabled, deviceTime.UnixMilli(), authoritative)
}
