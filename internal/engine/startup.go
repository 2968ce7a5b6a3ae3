package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that the Engine is reachable and the given models are
// available, pulling any that are missing. Empty and duplicate model names
// are skipped. Progress is written to w.
func EnsureReady(ctx context.Context, e Engine, w io.Writer, models ...string) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("generation backend is not reachable; please ensure it is started")
	}

	seen := make(map[string]bool, len(models))
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true

		if !e.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: pulling...\n", model)
			if err := e.PullModel(ctx, model, progressPrinter(w)); err != nil {
				return fmt.Errorf("pulling model %s: %w", model, err)
			}
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}

// progressPrinter reports pull progress, printing a line only when the
// status changes or the percentage advances by ten points.
func progressPrinter(w io.Writer) func(PullProgress) {
	var lastStatus string
	lastPct := -1
	return func(p PullProgress) {
		if p.Total <= 0 {
			if p.Status != lastStatus {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
			lastStatus, lastPct = p.Status, -1
			return
		}
		pct := int(p.Completed * 100 / p.Total)
		if p.Status == lastStatus && pct < lastPct+10 && pct != 100 {
			return
		}
		fmt.Fprintf(w, "  %s %d%%\n", p.Status, pct)
		lastStatus, lastPct = p.Status, pct
	}
}
