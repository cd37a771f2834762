package producer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
	"github.com/valyala/fastjson"
)

// ItemResult is the outcome of processing one batch item
type ItemResult struct {
	ID       int
	Success  bool
	Duration time.Duration
	At       time.Time
}

// ProcessFunc handles one item
type ProcessFunc func(ctx context.Context, id int) ItemResult

// BatchJob processes a fixed number of items and keeps a metrics document
// describing its progress up to date
type BatchJob struct {
	MetricsFile string
	TotalItems  int
	FlushEvery  int
	Process     ProcessFunc
	Logger      *logging.Logger

	started time.Time
	results []ItemResult
}

// Summary is the final state of a batch job
type Summary struct {
	Processed   int
	Successful  int
	Failed      int
	SuccessRate float64
	TotalTime   time.Duration
}

// Passed reports whether the success rate meets the threshold
func (s Summary) Passed(minPct float64) bool {
	return s.SuccessRate >= minPct
}

// Run processes every item, writing the document every FlushEvery items and
// once more at the end with the success rate. A cancelled context stops
// after the current item and still writes the final document.
func (j *BatchJob) Run(ctx context.Context) (Summary, error) {
	if j.FlushEvery <= 0 {
		j.FlushEvery = 10
	}
	if j.Logger == nil {
		j.Logger = logging.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(j.MetricsFile), 0755); err != nil {
		return Summary{}, fmt.Errorf("failed to create metrics directory: %w", err)
	}

	j.started = time.Now()
	j.results = j.results[:0]

	for id := 1; id <= j.TotalItems; id++ {
		if ctx.Err() != nil {
			j.Logger.Warn().Int("processed", id-1).Msg("Batch job interrupted")
			break
		}

		j.results = append(j.results, j.Process(ctx, id))

		if id%j.FlushEvery == 0 {
			if err := j.write(false); err != nil {
				return Summary{}, err
			}
			s := j.summary()
			j.Logger.Info().
				Int("processed", s.Processed).
				Int("total", j.TotalItems).
				Int("successful", s.Successful).
				Int("failed", s.Failed).
				Msg("Progress")
		}
	}

	if err := j.write(true); err != nil {
		return Summary{}, err
	}
	return j.summary(), nil
}

func (j *BatchJob) summary() Summary {
	var s Summary
	for _, r := range j.results {
		s.Processed++
		if r.Success {
			s.Successful++
		} else {
			s.Failed++
		}
		s.TotalTime += r.Duration
	}
	if s.Processed > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.Processed) * 100
	}
	return s
}

// write replaces the metrics document atomically so a watcher never reads
// a half-written file
func (j *BatchJob) write(final bool) error {
	s := j.summary()

	var arena fastjson.Arena
	doc := arena.NewObject()
	doc.Set("job_start", arena.NewString(j.started.UTC().Format(time.RFC3339Nano)))
	doc.Set("total_items", arena.NewNumberInt(j.TotalItems))
	doc.Set("processed", arena.NewNumberInt(s.Processed))
	doc.Set("successful", arena.NewNumberInt(s.Successful))
	doc.Set("failed", arena.NewNumberInt(s.Failed))
	doc.Set("total_processing_time_ms", arena.NewNumberFloat64(float64(s.TotalTime)/float64(time.Millisecond)))

	items := arena.NewArray()
	for i, r := range j.results {
		item := arena.NewObject()
		item.Set("item_id", arena.NewNumberInt(r.ID))
		if r.Success {
			item.Set("success", arena.NewTrue())
		} else {
			item.Set("success", arena.NewFalse())
		}
		item.Set("processing_time_ms", arena.NewNumberFloat64(float64(r.Duration)/float64(time.Millisecond)))
		item.Set("timestamp", arena.NewString(r.At.UTC().Format(time.RFC3339Nano)))
		items.SetArrayItem(i, item)
	}
	doc.Set("items", items)

	if final {
		doc.Set("job_end", arena.NewString(time.Now().UTC().Format(time.RFC3339Nano)))
		doc.Set("success_rate", arena.NewNumberFloat64(s.SuccessRate))
	}

	tmp := j.MetricsFile + ".tmp"
	if err := os.WriteFile(tmp, doc.MarshalTo(nil), 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if err := os.Rename(tmp, j.MetricsFile); err != nil {
		return fmt.Errorf("failed to replace metrics file: %w", err)
	}
	return nil
}
