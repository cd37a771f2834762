package parser

import (
	"strings"

	"github.com/therealutkarshpriyadarshi/metricsadapter/pkg/types"
	"github.com/valyala/fastjson"
)

// RecordDecoder decodes the producer's JSON log lines:
//
//	{"timestamp":"2024-01-15T10:30:45.123Z","operation":"random_generation","duration_ms":52.3,"value":417}
//
// All four fields are required. Unknown fields are ignored.
type RecordDecoder struct {
	parsers fastjson.ParserPool
}

// NewRecordDecoder creates a new JSON record decoder
func NewRecordDecoder() *RecordDecoder {
	return &RecordDecoder{}
}

// Decode parses a single line. Blank lines return ErrBlankLine; anything
// that is not a complete record returns an error matching ErrMalformed.
func (d *RecordDecoder) Decode(line string) (types.LogRecord, error) {
	var record types.LogRecord

	line = strings.TrimSpace(line)
	if line == "" {
		return record, ErrBlankLine
	}

	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.Parse(line)
	if err != nil {
		return record, syntaxError("invalid JSON", err)
	}
	if v.Type() != fastjson.TypeObject {
		return record, syntaxError("expected a JSON object, got "+v.Type().String(), nil)
	}

	if record.Timestamp, err = stringField(v, "timestamp"); err != nil {
		return record, err
	}
	if record.Operation, err = stringField(v, "operation"); err != nil {
		return record, err
	}
	if record.DurationMs, err = numberField(v, "duration_ms"); err != nil {
		return record, err
	}
	if record.DurationMs < 0 {
		return record, fieldError("duration_ms", "is negative")
	}
	if record.Value, err = numberField(v, "value"); err != nil {
		return record, err
	}

	return record, nil
}

// Name returns the decoder name
func (d *RecordDecoder) Name() string {
	return "json"
}

func stringField(v *fastjson.Value, field string) (string, error) {
	fv := v.Get(field)
	if fv == nil {
		return "", fieldError(field, "is missing")
	}
	b, err := fv.StringBytes()
	if err != nil {
		return "", fieldError(field, "is not a string")
	}
	return string(b), nil
}

func numberField(v *fastjson.Value, field string) (float64, error) {
	fv := v.Get(field)
	if fv == nil {
		return 0, fieldError(field, "is missing")
	}
	n, err := fv.Float64()
	if err != nil {
		return 0, fieldError(field, "is not a number")
	}
	return n, nil
}
