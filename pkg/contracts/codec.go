package contracts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/decision-schema/pkg/canonicalize"
	"github.com/Mindburn-Labs/decision-schema/pkg/version"
)

// ErrMalformedRecord is the sentinel wrapped by every deserialization failure.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError names the offending field when it is known.
type MalformedRecordError struct {
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed record: %s", e.Reason)
	}
	return fmt.Sprintf("malformed record: field %q: %s", e.Field, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }

func malformed(field, format string, args ...any) error {
	return &MalformedRecordError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

//go:embed record.schema.json
var recordSchemaJSON []byte

const recordSchemaURL = "https://schemas.decision-schema.local/trace-record.schema.json"

var recordSchema = sync.OnceValue(func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(recordSchemaURL, bytes.NewReader(recordSchemaJSON)); err != nil {
		panic(fmt.Sprintf("contracts: embedded record schema: %v", err))
	}
	return c.MustCompile(recordSchemaURL)
})

// RecordSchema returns the JSON Schema (draft 2020-12) that Deserialize
// enforces on the record envelope.
func RecordSchema() []byte {
	return bytes.Clone(recordSchemaJSON)
}

// Serialize converts r into a plain map keyed by the wire field names. The
// result shares no mutable state with r. An absent mismatch is emitted as an
// explicit nil.
func Serialize(r Record) map[string]any {
	var mismatch any
	if r.mismatch != nil {
		mismatch = copyMap(r.mismatch)
	}
	return map[string]any{
		FieldRunID:         r.runID,
		FieldStep:          r.step,
		FieldInput:         copyMap(orEmpty(r.input)),
		FieldContext:       copyMap(orEmpty(r.contextMap)),
		FieldIntermediate:  copyMap(orEmpty(r.intermediate)),
		FieldFinalAction:   copyMap(orEmpty(r.finalAction)),
		FieldLatencyMs:     r.latencyMs,
		FieldMismatch:      mismatch,
		FieldSchemaVersion: r.schemaVersion,
	}
}

// Deserialize rebuilds a Record from the output of Serialize or from decoded
// JSON. The envelope is strict: required fields must be present with the right
// types and unknown top-level fields are rejected. An absent or null
// schemaVersion defaults to version.Current(). Failures wrap ErrMalformedRecord.
func Deserialize(m map[string]any) (Record, error) {
	if m == nil {
		return Record{}, malformed("", "record is null")
	}
	if err := recordSchema().Validate(map[string]any(m)); err != nil {
		return Record{}, schemaError(err)
	}

	runID, ok := m[FieldRunID].(string)
	if !ok {
		return Record{}, malformed(FieldRunID, "expected string, got %T", m[FieldRunID])
	}
	step, err := integerField(m, FieldStep, false)
	if err != nil {
		return Record{}, err
	}
	latency, err := integerField(m, FieldLatencyMs, true)
	if err != nil {
		return Record{}, err
	}

	payloads := make(map[string]map[string]any, 4)
	for _, f := range []string{FieldInput, FieldContext, FieldIntermediate, FieldFinalAction} {
		p, ok := m[f].(map[string]any)
		if !ok || p == nil {
			return Record{}, malformed(f, "expected object, got %T", m[f])
		}
		payloads[f] = p
	}

	var mismatch map[string]any
	switch v := m[FieldMismatch].(type) {
	case nil:
	case map[string]any:
		mismatch = v
	default:
		return Record{}, malformed(FieldMismatch, "expected object or null, got %T", v)
	}

	schemaVersion := version.Current()
	switch v := m[FieldSchemaVersion].(type) {
	case nil:
	case string:
		schemaVersion = v
	default:
		return Record{}, malformed(FieldSchemaVersion, "expected string or null, got %T", v)
	}

	opts := []RecordOption{WithSchemaVersion(schemaVersion)}
	if mismatch != nil {
		opts = append(opts, WithMismatch(mismatch))
	}
	return NewRecord(
		runID,
		step,
		payloads[FieldInput],
		payloads[FieldContext],
		payloads[FieldIntermediate],
		payloads[FieldFinalAction],
		latency,
		opts...,
	), nil
}

// MarshalJSON encodes the serialized form of r.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(Serialize(r))
}

// UnmarshalJSON decodes a serialized record. Numbers inside payloads are kept
// as json.Number so integers survive without float rounding.
func (r *Record) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	rec, err := ParseLine(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// ParseLine decodes exactly one JSON record document.
func ParseLine(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Record{}, malformed("", "invalid JSON: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Record{}, malformed("", "trailing data after record")
	}
	m, ok := raw.(map[string]any)
	if !ok {
		if raw == nil {
			return Record{}, malformed("", "record is null")
		}
		return Record{}, malformed("", "expected JSON object, got %T", raw)
	}
	return Deserialize(m)
}

// Fingerprint returns the SHA-256 of the RFC 8785 canonical form of the
// serialized record. Equal records always share a fingerprint.
func (r Record) Fingerprint() (string, error) {
	return canonicalize.CanonicalHash(Serialize(r))
}

func integerField(m map[string]any, field string, nonNegative bool) (int64, error) {
	n, err := toInt64(m[field])
	if err != nil {
		return 0, malformed(field, "%v", err)
	}
	if nonNegative && n < 0 {
		return 0, malformed(field, "must be >= 0, got %d", n)
	}
	return n, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return uintToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n.String())
		}
		return floatToInt64(f)
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func uintToInt64(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("integer %d out of range", n)
	}
	return int64(n), nil
}

func floatToInt64(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("integer %v out of range", f)
	}
	return int64(f), nil
}

func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		return &MalformedRecordError{
			Field:  strings.TrimPrefix(leaf.InstanceLocation, "/"),
			Reason: leaf.Message,
		}
	}
	return &MalformedRecordError{Reason: err.Error()}
}
