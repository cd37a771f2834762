package types

// LogRecord is one decoded line of the producer's JSON log
type LogRecord struct {
	Timestamp  string  `json:"timestamp"` // producer clock, informational only
	Operation  string  `json:"operation"`
	DurationMs float64 `json:"duration_ms"`
	Value      float64 `json:"value"`
}

// DurationSeconds returns the record duration in seconds
func (r LogRecord) DurationSeconds() float64 {
	return r.DurationMs / 1000.0
}

// LegacyRequest is one decoded line of the legacy multi-format log
type LegacyRequest struct {
	Format     string  `json:"format"` // apache, custom, syslog, csv
	Status     int     `json:"status"`
	DurationMs float64 `json:"duration_ms"`
	HasTiming  bool    `json:"has_timing"`
	Level      string  `json:"level,omitempty"`
}

// BatchSnapshot is the whole-document metrics file written by a batch job.
// Absent fields decode as zero.
type BatchSnapshot struct {
	Processed             float64 `json:"processed"`
	Successful            float64 `json:"successful"`
	Failed                float64 `json:"failed"`
	SuccessRate           float64 `json:"success_rate"`
	TotalProcessingTimeMs float64 `json:"total_processing_time_ms"`
}

// ReadResult is what a single tail read produces
type ReadResult struct {
	Lines  []string
	Offset int64  // offset just past the last complete line
	Reset  bool   // the stored offset was discarded (truncation or replacement)
	Inode  uint64 // identity of the file read, 0 when it was missing
}
