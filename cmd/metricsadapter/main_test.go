package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/config"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/metrics"
	"go.opentelemetry.io/otel/trace/noop"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.Tail.LogFile = filepath.Join(dir, "random.log")
	cfg.Tail.PositionFile = filepath.Join(dir, "state", "random.pos")
	cfg.Legacy.Enabled = true
	cfg.Legacy.LogFile = filepath.Join(dir, "application.log")
	cfg.Legacy.PositionFile = filepath.Join(dir, "state", "application.pos")
	cfg.Batch.Enabled = true
	cfg.Batch.MetricsFile = filepath.Join(dir, "metrics.json")
	cfg.Watch = false
	return cfg
}

func TestBuildComponents(t *testing.T) {
	cfg := testConfig(t)

	components, err := buildComponents(cfg, metrics.NewCollector(), noop.NewTracerProvider().Tracer("test"), logging.Nop())
	if err != nil {
		t.Fatalf("Failed to build components: %v", err)
	}

	if len(components) != 3 {
		t.Fatalf("Expected 3 components, got %d", len(components))
	}

	names := []string{"tail", "legacy", "batch"}
	for i, c := range components {
		if c.loop.Name != names[i] {
			t.Errorf("Expected component %d to be %s, got %s", i, names[i], c.loop.Name)
		}
		if c.watcher != nil {
			t.Errorf("Expected no watcher for %s with watching disabled", c.loop.Name)
		}
	}

	if components[2].before == nil {
		t.Error("Expected batch component to wait for its source")
	}
	if components[2].loop.Interval != cfg.Batch.PollInterval {
		t.Errorf("Expected batch interval %v, got %v", cfg.Batch.PollInterval, components[2].loop.Interval)
	}
}

func TestBuildComponentsWithWatcher(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch = true
	cfg.Legacy.Enabled = false
	cfg.Batch.Enabled = false

	components, err := buildComponents(cfg, metrics.NewCollector(), noop.NewTracerProvider().Tracer("test"), logging.Nop())
	if err != nil {
		t.Fatalf("Failed to build components: %v", err)
	}

	if len(components) != 1 {
		t.Fatalf("Expected 1 component, got %d", len(components))
	}
	if components[0].watcher == nil {
		t.Fatal("Expected a file watcher")
	}
	if components[0].loop.Wake == nil {
		t.Error("Expected loop wake channel to be wired to the watcher")
	}
}

func TestTailPassEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Legacy.Enabled = false
	cfg.Batch.Enabled = false

	content := `{"timestamp":"2024-01-15T10:30:45.123000Z","operation":"random_generation","duration_ms":10,"value":5}` + "\n" +
		`{"timestamp":"2024-01-15T10:30:46.123000Z","operation":"random_generation","duration_ms":30,"value":7}` + "\n"
	if err := os.WriteFile(cfg.Tail.LogFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write log file: %v", err)
	}

	collector := metrics.NewCollector()
	components, err := buildComponents(cfg, collector, noop.NewTracerProvider().Tracer("test"), logging.Nop())
	if err != nil {
		t.Fatalf("Failed to build components: %v", err)
	}

	if err := components[0].loop.Pass(context.Background()); err != nil {
		t.Fatalf("Failed to run pass: %v", err)
	}

	var buf bytes.Buffer
	if err := collector.Render(&buf); err != nil {
		t.Fatalf("Failed to render metrics: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"random_generation_total 2",
		"random_generation_duration_seconds_count 2",
		"random_last_generated_value 7",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
}
