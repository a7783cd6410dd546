package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/loadgate/internal/metrics"
	"github.com/torosent/loadgate/internal/threshold"
)

// Results is the raw data of a finished run: counts and every latency sample
// in the order it was recorded.
type Results struct {
	RunID            string             `json:"run_id" yaml:"run_id"`
	Target           string             `json:"target" yaml:"target"`
	GeneratedAt      string             `json:"generated_at" yaml:"generated_at"`
	Successes        int64              `json:"successes" yaml:"successes"`
	Failures         int64              `json:"failures" yaml:"failures"`
	MeanLatencyMs    float64            `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	LatenciesMs      []float64          `json:"latencies_ms" yaml:"latencies_ms"`
	FailuresByReason map[string]int64   `json:"failures_by_reason,omitempty" yaml:"failures_by_reason,omitempty"`
	Thresholds       []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// NewResults converts a run result into its exported form.
func NewResults(runID, target string, run metrics.RunResult, thresholds []threshold.Result) Results {
	res := Results{
		RunID:         runID,
		Target:        target,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Successes:     run.Successes,
		Failures:      run.Failures,
		MeanLatencyMs: durationMs(run.MeanLatency()),
		LatenciesMs:   make([]float64, len(run.Latencies)),
		Thresholds:    thresholds,
	}
	for i, l := range run.Latencies {
		res.LatenciesMs[i] = durationMs(l)
	}
	if len(run.ByReason) > 0 {
		res.FailuresByReason = make(map[string]int64, len(run.ByReason))
		for reason, count := range run.ByReason {
			res.FailuresByReason[string(reason)] = count
		}
	}
	return res
}

// WriteResults encodes res as YAML or JSON.
func WriteResults(w io.Writer, res Results, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	default:
		return fmt.Errorf("unsupported results format %q (use yaml or json)", format)
	}
}

// WriteResultsFile writes res to path, picking the format from the extension.
func WriteResultsFile(path string, res Results) error {
	format, err := resultsFormat(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	if err := WriteResults(f, res, format); err != nil {
		f.Close()
		return fmt.Errorf("write results file: %w", err)
	}
	return f.Close()
}

func resultsFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml", nil
	case ".json":
		return "json", nil
	default:
		return "", fmt.Errorf("results file %q must end in .yaml, .yml or .json", path)
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
