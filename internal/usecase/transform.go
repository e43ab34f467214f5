package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"TelegramWarehouse/internal/domain"
	"TelegramWarehouse/internal/ports"
)

// transform issues run, test and docs in order. A failing test command only
// clears TestsPassed; a failing run or docs command yields a failed summary.
// Errors are returned only when a command could not be executed at all.
func (p *Pipeline) transform(ctx context.Context, log *slog.Logger, loaded int) (TransformSummary, error) {
	summary := TransformSummary{Status: domain.SummarySuccess, LoadedRecords: loaded}
	if p.transformer == nil {
		summary.Status = domain.SummarySkipped
		summary.Error = "transform is not configured"
		return summary, nil
	}

	run, err := p.command(ctx, &summary, ports.TransformRun)
	if err != nil {
		return summary, err
	}
	if !run.Succeeded() {
		return failedTransform(summary, run), nil
	}

	test, err := p.command(ctx, &summary, ports.TransformTest)
	if err != nil {
		return summary, err
	}
	summary.TestsPassed = test.Succeeded()
	if !summary.TestsPassed {
		log.Warn("transform tests failed, continuing", "exit_code", test.ExitCode, "output", lastLine(test))
	}

	docs, err := p.command(ctx, &summary, ports.TransformDocs)
	if err != nil {
		return summary, err
	}
	if !docs.Succeeded() {
		return failedTransform(summary, docs), nil
	}

	log.Info("transform finished", "tests_passed", summary.TestsPassed)
	return summary, nil
}

func (p *Pipeline) command(ctx context.Context, summary *TransformSummary, cmd ports.TransformCommand) (ports.CommandResult, error) {
	res, err := p.transformer.Run(ctx, cmd)
	if err != nil {
		return res, fmt.Errorf("transform %s: %w", cmd, err)
	}
	summary.Commands = append(summary.Commands, CommandOutcome{
		Command:  string(cmd),
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	})
	return res, nil
}

func failedTransform(summary TransformSummary, res ports.CommandResult) TransformSummary {
	summary.Status = domain.SummaryFailed
	summary.TestsPassed = false
	summary.Error = fmt.Sprintf("%s exited with code %d", res.Command, res.ExitCode)
	if line := lastLine(res); line != "" {
		summary.Error += ": " + line
	}
	return summary
}

func lastLine(res ports.CommandResult) string {
	out := strings.TrimSpace(res.Stderr)
	if out == "" {
		out = strings.TrimSpace(res.Stdout)
	}
	if i := strings.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	return strings.TrimSpace(out)
}
