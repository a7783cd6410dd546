package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// RatePolicy names how the rate quota is enforced.
type RatePolicy string

const (
	RatePolicyAuto      RatePolicy = "auto"
	RatePolicyBurst     RatePolicy = "burst"
	RatePolicySustained RatePolicy = "sustained"
)

const (
	DefaultTotal       = 100
	DefaultTimeout     = 10 * time.Second
	DefaultRate        = 500
	DefaultRateWindow  = time.Minute
	DefaultConcurrency = 40
)

type Config struct {
	TargetURL   string        `mapstructure:"target"`
	Total       int           `mapstructure:"total"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
	Rate        int           `mapstructure:"rate"`
	RateWindow  time.Duration `mapstructure:"rate_window"`
	RatePolicy  RatePolicy    `mapstructure:"rate_policy"`
	JSONOutput  bool          `mapstructure:"json_output"`
	Quiet       bool          `mapstructure:"quiet"`
	NoColor     bool          `mapstructure:"no_color"`
	Dashboard   bool          `mapstructure:"dashboard"`
	HTMLOutput  string        `mapstructure:"html_output"`
	ResultsFile string        `mapstructure:"results_file"`
	Thresholds  []string      `mapstructure:"thresholds"`
	Tracing     TracingConfig `mapstructure:"tracing"`
	ConfigFile  string        `mapstructure:"-"`
}

// TracingConfig configures OpenTelemetry export of per-request spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`     // OTLP collector endpoint (host:port)
	Protocol    string  `mapstructure:"protocol"`     // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"` // defaults to OTEL_SERVICE_NAME or "loadgate"
	SampleRate  float64 `mapstructure:"sample_rate"`  // 0.0 - 1.0
	Insecure    bool    `mapstructure:"insecure"`     // plaintext connection to the collector
	Propagate   bool    `mapstructure:"propagate"`    // inject W3C trace headers into requests
}

// Enabled reports whether any tracing feature was requested.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || t.Propagate
}

// ShouldPropagate reports whether trace context headers are injected.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Propagate
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	target := strings.TrimSpace(c.TargetURL)
	if target == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	} else if u, err := url.Parse(target); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		issues = append(issues, fmt.Sprintf("target %q must be an absolute http or https URL", target))
	}

	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High rate limit configured (%d requests per %s). Ensure you have authorization to test the target system.", c.Rate, c.RateWindow))
	}
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High concurrency configured (%d in flight). Ensure you have authorization to test the target system.", c.Concurrency))
	}
	if c.Total > 0 && c.Concurrency > c.Total {
		warnings = append(warnings, fmt.Sprintf("WARNING: Concurrency %d exceeds total %d; at most %d requests will ever be in flight.", c.Concurrency, c.Total, c.Total))
	}

	if len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, w)
		}
	}

	if c.Total < 0 {
		issues = append(issues, "total must be >= 0")
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.RateWindow <= 0 {
		issues = append(issues, "rate_window must be > 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	issues = append(issues, validateRatePolicy(c.RatePolicy, c.Total, c.Rate)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateRatePolicy(policy RatePolicy, total, rate int) []string {
	switch policy {
	case "", RatePolicyAuto, RatePolicySustained:
		return nil
	case RatePolicyBurst:
		if rate > 0 && total > rate {
			return []string{fmt.Sprintf("rate_policy burst requires total (%d) <= rate (%d): the burst pool is never refilled", total, rate)}
		}
		return nil
	default:
		return []string{fmt.Sprintf("rate_policy %q is not supported (use auto, burst or sustained)", policy)}
	}
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	return issues
}
