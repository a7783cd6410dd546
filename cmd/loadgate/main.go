package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/loadgate/internal/config"
	"github.com/torosent/loadgate/internal/dashboard"
	"github.com/torosent/loadgate/internal/executor"
	"github.com/torosent/loadgate/internal/httpclient"
	"github.com/torosent/loadgate/internal/metrics"
	"github.com/torosent/loadgate/internal/output"
	"github.com/torosent/loadgate/internal/runner"
	"github.com/torosent/loadgate/internal/threshold"
	"github.com/torosent/loadgate/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runID := ulid.Make().String()

	provider, err := tracing.Init(ctx, cfg.Tracing, runID)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "[loadgate] tracing shutdown: %v\n", err)
		}
	}()

	builder, err := httpclient.NewRequestBuilder(cfg)
	if err != nil {
		return err
	}
	client := httpclient.NewClient(cfg.Timeout, cfg.Concurrency)
	aggregator := metrics.NewAggregator(cfg.Total)

	var exec runner.Executor = executor.NewHTTPExecutor(client, builder, cfg.Timeout,
		executor.WithTracer(provider.Tracer()))
	if !cfg.Quiet && !cfg.JSONOutput && !cfg.Dashboard {
		exec = runner.WithOutcomeLogging(exec, output.NewOutcomeLogger(stdout, cfg.Total, cfg.NoColor))
	}

	dispatcher := runner.New(runner.Options{
		TotalRequests: cfg.Total,
		Concurrency:   cfg.Concurrency,
		RatePerWindow: cfg.Rate,
		Window:        cfg.RateWindow,
		Policy:        toRunnerPolicy(cfg.RatePolicy),
		Executor:      exec,
		Recorder:      aggregator,
	})

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(aggregator, dashboard.RunConfig{
			RunID:       runID,
			TargetURL:   builder.Target(),
			Total:       cfg.Total,
			Concurrency: cfg.Concurrency,
			Rate:        cfg.Rate,
			RateWindow:  cfg.RateWindow,
			RatePolicy:  string(dispatcher.Policy()),
			Timeout:     cfg.Timeout,
			ConfigFile:  cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if cfg.Quiet && !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(aggregator, progressInterval, stdout)
		progress.Start()
	}

	aggregator.Start()
	result, runErr := dispatcher.Run(ctx)

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
	}

	interrupted := runErr != nil && errors.Is(runErr, context.Canceled)
	if runErr != nil && !interrupted {
		return runErr
	}

	stats := aggregator.Stats(result.Duration)
	thresholdResults := threshold.NewEvaluator(thresholds).Evaluate(stats)
	report := output.Report{
		RunID:        runID,
		Target:       builder.Target(),
		RatePolicy:   string(result.Policy),
		PeakInFlight: result.PeakInFlight,
		Stats:        stats,
		Thresholds:   thresholdResults,
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, report)
	}

	if cfg.ResultsFile != "" {
		res := output.NewResults(runID, builder.Target(), result.Run, thresholdResults)
		if err := output.WriteResultsFile(cfg.ResultsFile, res); err != nil {
			return err
		}
	}

	if cfg.HTMLOutput != "" {
		if err := writeHTMLReport(cfg.HTMLOutput, report, result.Run); err != nil {
			return err
		}
		if !cfg.JSONOutput {
			fmt.Fprintf(stdout, "\nHTML report written to %s\n", cfg.HTMLOutput)
		}
	}

	if interrupted {
		return fmt.Errorf("run interrupted after %d of %d requests", stats.Total, cfg.Total)
	}
	if stats.Failures > 0 {
		return fmt.Errorf("%d requests failed", stats.Failures)
	}
	if !threshold.AllPassed(thresholdResults) {
		return errors.New("one or more thresholds failed")
	}
	return nil
}

func writeHTMLReport(path string, report output.Report, run metrics.RunResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create HTML report: %w", err)
	}
	if err := output.GenerateHTMLReport(f, report, run); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func toRunnerPolicy(p config.RatePolicy) runner.RatePolicy {
	switch p {
	case config.RatePolicyBurst:
		return runner.PolicyBurst
	case config.RatePolicySustained:
		return runner.PolicySustained
	default:
		return runner.PolicyAuto
	}
}
