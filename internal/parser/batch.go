package parser

import (
	"github.com/therealutkarshpriyadarshi/metricsadapter/pkg/types"
	"github.com/valyala/fastjson"
)

// BatchDecoder decodes a batch job's whole-document metrics file. The
// document is parsed atomically: either it is a JSON object or the whole
// snapshot is rejected. Missing or non-numeric fields read as zero.
type BatchDecoder struct {
	parsers fastjson.ParserPool
}

// NewBatchDecoder creates a new batch document decoder
func NewBatchDecoder() *BatchDecoder {
	return &BatchDecoder{}
}

// Decode parses a complete metrics document
func (d *BatchDecoder) Decode(doc []byte) (types.BatchSnapshot, error) {
	var snap types.BatchSnapshot

	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(doc)
	if err != nil {
		return snap, syntaxError("invalid JSON document", err)
	}
	if v.Type() != fastjson.TypeObject {
		return snap, syntaxError("expected a JSON object, got "+v.Type().String(), nil)
	}

	snap.Processed = v.GetFloat64("processed")
	snap.Successful = v.GetFloat64("successful")
	snap.Failed = v.GetFloat64("failed")
	snap.SuccessRate = v.GetFloat64("success_rate")
	snap.TotalProcessingTimeMs = v.GetFloat64("total_processing_time_ms")

	return snap, nil
}

// Name returns the decoder name
func (d *BatchDecoder) Name() string {
	return "batch"
}
