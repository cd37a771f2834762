package adapter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/metrics"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/parser"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/tailer"
	"github.com/therealutkarshpriyadarshi/metricsadapter/pkg/types"
)

const (
	recordA = `{"timestamp":"2024-01-15T10:30:45.000Z","operation":"random_generation","duration_ms":50,"value":10}`
	recordB = `{"timestamp":"2024-01-15T10:30:46.000Z","operation":"random_generation","duration_ms":150,"value":20}`
	recordC = `{"timestamp":"2024-01-15T10:30:47.000Z","operation":"random_generation","duration_ms":75,"value":30}`
)

type tailFixture struct {
	logPath   string
	store     *checkpoint.Store
	collector *metrics.Collector
	adapter   *LineAdapter[types.LogRecord]
}

func newTailFixture(t *testing.T) *tailFixture {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "random.log")

	collector := metrics.NewCollector()
	sink, err := collector.NewTailSink("random", nil)
	require.NoError(t, err)

	store := checkpoint.NewStore(filepath.Join(dir, "random.pos"), nil)
	a, err := NewLineAdapter(LineConfig[types.LogRecord]{
		Name:      "tail",
		Tailer:    tailer.New(logPath, nil),
		Store:     store,
		Decoder:   parser.NewRecordDecoder(),
		Sink:      sink,
		Collector: collector,
	})
	require.NoError(t, err)

	return &tailFixture{logPath: logPath, store: store, collector: collector, adapter: a}
}

func (f *tailFixture) append(t *testing.T, content string) {
	t.Helper()
	file, err := os.OpenFile(f.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	defer file.Close()
	_, err = file.WriteString(content)
	require.NoError(t, err)
}

func (f *tailFixture) pass(t *testing.T) PassStats {
	t.Helper()
	stats, err := f.adapter.Process(context.Background())
	require.NoError(t, err)
	return stats
}

// family returns the single metric of the named family, or nil if absent
func family(t *testing.T, reg *prometheus.Registry, name string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0]
		}
	}
	return nil
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	m := family(t, reg, name)
	if m == nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	m := family(t, reg, name)
	if m == nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func histogramValue(t *testing.T, reg *prometheus.Registry, name string) *dto.Histogram {
	t.Helper()
	m := family(t, reg, name)
	require.NotNil(t, m, "histogram %s not found", name)
	return m.GetHistogram()
}

func TestTailPassFoldsRecords(t *testing.T) {
	f := newTailFixture(t)
	f.append(t, recordA+"\n"+"{not json\n"+recordB+"\n")

	stats := f.pass(t)
	assert.Equal(t, 2, stats.Folded)
	assert.Equal(t, 1, stats.Malformed)

	reg := f.collector.Registry()
	assert.Equal(t, 2.0, counterValue(t, reg, "random_generation_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "adapter_errors_total"))
	assert.Equal(t, 20.0, gaugeValue(t, reg, "random_last_generated_value"))

	h := histogramValue(t, reg, "random_generation_duration_seconds")
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 0.2, h.GetSampleSum(), 1e-9)

	offset, err := f.store.Load()
	require.NoError(t, err)
	info, err := os.Stat(f.logPath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), offset)
}

func TestTailPassNoDoubleCount(t *testing.T) {
	f := newTailFixture(t)
	f.append(t, recordA+"\n"+recordB+"\n")

	f.pass(t)
	stats := f.pass(t)
	assert.Zero(t, stats.Folded)

	assert.Equal(t, 2.0, counterValue(t, f.collector.Registry(), "random_generation_total"))
}

func TestTailPassSplitAppends(t *testing.T) {
	// Folding a file in two appends must match folding it at once
	whole := newTailFixture(t)
	whole.append(t, recordA+"\n"+recordB+"\n"+recordC+"\n")
	whole.pass(t)

	split := newTailFixture(t)
	split.append(t, recordA+"\n")
	split.pass(t)
	split.append(t, recordB+"\n"+recordC+"\n")
	split.pass(t)

	for _, name := range []string{"random_generation_total"} {
		assert.Equal(t,
			counterValue(t, whole.collector.Registry(), name),
			counterValue(t, split.collector.Registry(), name), name)
	}
	assert.Equal(t,
		gaugeValue(t, whole.collector.Registry(), "random_last_generated_value"),
		gaugeValue(t, split.collector.Registry(), "random_last_generated_value"))

	hw := histogramValue(t, whole.collector.Registry(), "random_generation_duration_seconds")
	hs := histogramValue(t, split.collector.Registry(), "random_generation_duration_seconds")
	assert.Equal(t, hw.GetSampleCount(), hs.GetSampleCount())
	assert.InDelta(t, hw.GetSampleSum(), hs.GetSampleSum(), 1e-9)
}

func TestTailPassPartialLine(t *testing.T) {
	f := newTailFixture(t)

	// Write the record in two halves
	half := len(recordA) / 2
	f.append(t, recordA[:half])

	stats := f.pass(t)
	assert.Zero(t, stats.Folded)
	assert.Zero(t, stats.Malformed)
	assert.Equal(t, int64(0), stats.Offset)

	f.append(t, recordA[half:]+"\n")
	stats = f.pass(t)
	assert.Equal(t, 1, stats.Folded)
	assert.Zero(t, counterValue(t, f.collector.Registry(), "adapter_errors_total"))
}

func TestTailPassSkipsBlankLines(t *testing.T) {
	f := newTailFixture(t)
	f.append(t, "\n   \n"+recordA+"\n")

	stats := f.pass(t)
	assert.Equal(t, 1, stats.Folded)
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, counterValue(t, f.collector.Registry(), "adapter_errors_total"))
}

func TestTailPassMissingFile(t *testing.T) {
	f := newTailFixture(t)

	stats := f.pass(t)
	assert.Zero(t, stats.Folded)

	_, err := os.Stat(f.store.Path())
	assert.True(t, os.IsNotExist(err), "position file should not be written when nothing was read")
}

func TestTailPassCorruptPosition(t *testing.T) {
	f := newTailFixture(t)
	f.append(t, recordA+"\n"+recordB+"\n")
	require.NoError(t, os.WriteFile(f.store.Path(), []byte("garbage"), 0644))

	stats := f.pass(t)
	assert.Equal(t, 2, stats.Folded)
}

func TestTailPassTruncation(t *testing.T) {
	f := newTailFixture(t)
	f.append(t, recordA+"\n"+recordB+"\n")
	f.pass(t)

	require.NoError(t, os.WriteFile(f.logPath, []byte(recordC+"\n"), 0644))

	stats := f.pass(t)
	assert.True(t, stats.Reset)
	assert.Equal(t, 1, stats.Folded)

	reg := f.collector.Registry()
	assert.Equal(t, 3.0, counterValue(t, reg, "random_generation_total"))
	assert.Equal(t, 30.0, gaugeValue(t, reg, "random_last_generated_value"))
	assert.Equal(t, 1.0, counterValue(t, reg, "adapter_tail_resets_total"))
}

func TestTailPassSaveFailureKeepsPosition(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "random.log")
	require.NoError(t, os.WriteFile(logPath, []byte(recordA+"\n"), 0644))

	// A directory in place of the temporary file makes Save fail while Load
	// still sees no position file
	posPath := filepath.Join(dir, "random.pos")
	require.NoError(t, os.Mkdir(posPath+".tmp", 0755))

	collector := metrics.NewCollector()
	sink, err := collector.NewTailSink("random", nil)
	require.NoError(t, err)

	store := checkpoint.NewStore(posPath, nil)
	a, err := NewLineAdapter(LineConfig[types.LogRecord]{
		Name:    "tail",
		Tailer:  tailer.New(logPath, nil),
		Store:   store,
		Decoder: parser.NewRecordDecoder(),
		Sink:    sink,
	})
	require.NoError(t, err)

	err = a.Pass(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save position")

	offset, err := store.Load()
	require.NoError(t, err)
	assert.Zero(t, offset)
}

func TestTailPassRotationAfterSaveFailure(t *testing.T) {
	f := newTailFixture(t)
	f.append(t, recordA+"\n"+recordB+"\n")
	first := f.pass(t)

	// Replace the file with a larger one
	require.NoError(t, os.Rename(f.logPath, f.logPath+".1"))
	rotated := recordA + "\n" + recordB + "\n" + recordC + "\n"
	f.append(t, rotated)
	require.Greater(t, int64(len(rotated)), first.Offset)

	blocker := f.store.Path() + ".tmp"
	require.NoError(t, os.Mkdir(blocker, 0755))
	_, err := f.adapter.Process(context.Background())
	require.Error(t, err)
	require.NoError(t, os.Remove(blocker))

	offset, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, first.Offset, offset)

	// The stored offset belongs to the old file, so the retry starts over
	stats := f.pass(t)
	assert.True(t, stats.Reset)
	assert.Equal(t, 3, stats.Folded)
	assert.Zero(t, stats.Malformed)
	assert.Equal(t, int64(len(rotated)), stats.Offset)
	assert.Zero(t, counterValue(t, f.collector.Registry(), "adapter_errors_total"))

	// Committed now: the next pass has nothing to do
	stats = f.pass(t)
	assert.False(t, stats.Reset)
	assert.Zero(t, stats.Folded)
}

func TestTailPassPublishesPosition(t *testing.T) {
	f := newTailFixture(t)
	f.append(t, recordA+"\n")
	stats := f.pass(t)

	assert.Equal(t, float64(stats.Offset), gaugeValue(t, f.collector.Registry(), "adapter_tail_position_bytes"))
}

func TestLegacyPass(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "application.log")

	content := strings.Join([]string{
		"# Multi-format log file",
		`127.0.0.1 - - [10/Oct/2000:13:55:36 -0700] "GET /api/data HTTP/1.1" 200 2326`,
		`[2024-01-15 10:30:45] ERROR: Request processed | status=500 | duration=20.00ms`,
		`Jan 15 10:30:45 localhost app[12345]: Request status=200 duration=45.00ms`,
		`2024-01-15T10:30:45.123456,INFO,200,45.00`,
		"unrecognised garbage",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0644))

	collector := metrics.NewCollector()
	sink, err := collector.NewLegacySink(nil)
	require.NoError(t, err)
	decoder, err := parser.NewLegacyDecoder()
	require.NoError(t, err)

	a, err := NewLineAdapter(LineConfig[types.LegacyRequest]{
		Name:      "legacy",
		Tailer:    tailer.New(logPath, nil),
		Store:     checkpoint.NewStore(filepath.Join(dir, "legacy.pos"), nil),
		Decoder:   decoder,
		Sink:      sink,
		Collector: collector,
	})
	require.NoError(t, err)

	stats, err := a.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Folded)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Malformed)

	reg := collector.Registry()
	assert.Equal(t, 1.0, counterValue(t, reg, "legacy_app_errors_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "adapter_errors_total"))

	h := histogramValue(t, reg, "legacy_app_request_duration_seconds")
	assert.Equal(t, uint64(3), h.GetSampleCount())
	assert.InDelta(t, 0.11, h.GetSampleSum(), 1e-9)
}

func TestNewLineAdapterValidates(t *testing.T) {
	_, err := NewLineAdapter(LineConfig[types.LogRecord]{Name: "tail"})
	assert.Error(t, err)
}

func newBatchFixture(t *testing.T) (string, *metrics.Collector, *BatchWatcher) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.json")
	collector := metrics.NewCollector()
	sink, err := collector.NewBatchSink()
	require.NoError(t, err)
	return path, collector, NewBatchWatcher(path, sink, nil)
}

func TestBatchPass(t *testing.T) {
	path, collector, w := newBatchFixture(t)
	doc := `{"processed":10,"successful":9,"failed":1,"success_rate":90.0,"total_processing_time_ms":500}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	require.NoError(t, w.Pass(context.Background()))

	reg := collector.Registry()
	assert.Equal(t, 10.0, gaugeValue(t, reg, "batch_job_items_processed"))
	assert.Equal(t, 9.0, gaugeValue(t, reg, "batch_job_items_successful"))
	assert.Equal(t, 1.0, gaugeValue(t, reg, "batch_job_items_failed"))
	assert.Equal(t, 90.0, gaugeValue(t, reg, "batch_job_success_rate"))
	assert.Equal(t, 0.5, gaugeValue(t, reg, "batch_job_processing_time_seconds"))
}

func TestBatchPassMissingFile(t *testing.T) {
	_, collector, w := newBatchFixture(t)

	require.NoError(t, w.Pass(context.Background()))
	assert.Zero(t, counterValue(t, collector.Registry(), "adapter_errors_total"))
}

func TestBatchPassUnchangedMtime(t *testing.T) {
	path, collector, w := newBatchFixture(t)
	mtime := time.Now().Add(-time.Minute).Truncate(time.Second)

	require.NoError(t, os.WriteFile(path, []byte(`{"processed":10}`), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	require.NoError(t, w.Pass(context.Background()))

	// Same mtime: content changes are not picked up
	require.NoError(t, os.WriteFile(path, []byte(`{"processed":20}`), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	require.NoError(t, w.Pass(context.Background()))
	assert.Equal(t, 10.0, gaugeValue(t, collector.Registry(), "batch_job_items_processed"))

	later := mtime.Add(time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	require.NoError(t, w.Pass(context.Background()))
	assert.Equal(t, 20.0, gaugeValue(t, collector.Registry(), "batch_job_items_processed"))
}

func TestBatchPassMalformedRetries(t *testing.T) {
	path, collector, w := newBatchFixture(t)
	mtime := time.Now().Add(-time.Minute).Truncate(time.Second)

	require.NoError(t, os.WriteFile(path, []byte(`{"processed":`), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	require.NoError(t, w.Pass(context.Background()))
	assert.Equal(t, 1.0, counterValue(t, collector.Registry(), "adapter_errors_total"))

	// The same bad document is counted once however many passes see it
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Pass(context.Background()))
	}
	assert.Equal(t, 1.0, counterValue(t, collector.Registry(), "adapter_errors_total"))

	// A new bad version is a new error
	later := mtime.Add(time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	require.NoError(t, w.Pass(context.Background()))
	assert.Equal(t, 2.0, counterValue(t, collector.Registry(), "adapter_errors_total"))

	// Fixed in place without touching the mtime: still retried and picked up
	require.NoError(t, os.WriteFile(path, []byte(`{"processed":3}`), 0644))
	require.NoError(t, os.Chtimes(path, later, later))
	require.NoError(t, w.Pass(context.Background()))
	assert.Equal(t, 3.0, gaugeValue(t, collector.Registry(), "batch_job_items_processed"))
	assert.Equal(t, 2.0, counterValue(t, collector.Registry(), "adapter_errors_total"))
}

func TestWaitForSourceFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	go func() {
		time.Sleep(20 * time.Millisecond)
		os.WriteFile(path, []byte("{}"), 0644)
	}()

	err := WaitForSource(context.Background(), path, 100, 5*time.Millisecond, nil)
	require.NoError(t, err)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestWaitForSourceGivesUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.json")

	start := time.Now()
	err := WaitForSource(context.Background(), path, 3, time.Millisecond, nil)
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForSourceCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.json")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForSource(ctx, path, 30, time.Hour, nil)
	assert.Error(t, err)
}
