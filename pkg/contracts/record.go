// Package contracts defines the trace record exchanged between decision cores
// and the decision vocabulary carried inside it.
//
// A Record is one decision step: what came in, the external context, the
// intermediate result, the final action, how long it took, and what a guard
// layer changed, stamped with the schema version it was produced under.
// Records are immutable; producers build a fresh one per step.
//
// Redaction is the caller's job. Serialize and the line Encoder write input
// and context as given, so secrets must be removed before a record is built.
package contracts

import (
	"reflect"

	"github.com/Mindburn-Labs/decision-schema/pkg/version"
)

// Wire field names of a serialized record.
const (
	FieldRunID         = "runId"
	FieldStep          = "step"
	FieldInput         = "input"
	FieldContext       = "context"
	FieldIntermediate  = "intermediate"
	FieldFinalAction   = "finalAction"
	FieldLatencyMs     = "latencyMs"
	FieldMismatch      = "mismatch"
	FieldSchemaVersion = "schemaVersion"
)

// Record is one traced decision step. The zero value is not meaningful; use
// NewRecord or Deserialize.
type Record struct {
	runID         string
	step          int64
	input         map[string]any
	contextMap    map[string]any
	intermediate  map[string]any
	finalAction   map[string]any
	latencyMs     int64
	mismatch      map[string]any
	schemaVersion string
}

// RecordOption sets an optional Record field.
type RecordOption func(*Record)

// WithMismatch attaches guard/modulation mismatch info. A nil map means absent.
func WithMismatch(m map[string]any) RecordOption {
	return func(r *Record) { r.mismatch = copyMap(m) }
}

// WithSchemaVersion overrides the schema version, which otherwise defaults to
// version.Current(). It is never inferred from content.
func WithSchemaVersion(v string) RecordOption {
	return func(r *Record) { r.schemaVersion = v }
}

// NewRecord builds a Record. Payload maps are deep-copied so later changes by
// the caller do not leak into the record; nil payloads become empty maps.
// No business validation happens here: a negative latencyMs builds, but
// Deserialize rejects it, so such a record does not survive the wire.
func NewRecord(
	runID string,
	step int64,
	input, context, intermediate, finalAction map[string]any,
	latencyMs int64,
	opts ...RecordOption,
) Record {
	r := Record{
		runID:         runID,
		step:          step,
		input:         orEmpty(copyMap(input)),
		contextMap:    orEmpty(copyMap(context)),
		intermediate:  orEmpty(copyMap(intermediate)),
		finalAction:   orEmpty(copyMap(finalAction)),
		latencyMs:     latencyMs,
		schemaVersion: version.Current(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func (r Record) RunID() string { return r.runID }
func (r Record) Step() int64   { return r.step }

// Input returns a copy of the input payload.
func (r Record) Input() map[string]any { return copyMap(r.input) }

// Context returns a copy of the external context map, the map whose keys the
// registry validator governs.
func (r Record) Context() map[string]any { return copyMap(r.contextMap) }

// Intermediate returns a copy of the intermediate result.
func (r Record) Intermediate() map[string]any { return copyMap(r.intermediate) }

// FinalAction returns a copy of the final action payload.
func (r Record) FinalAction() map[string]any { return copyMap(r.finalAction) }

func (r Record) LatencyMs() int64 { return r.latencyMs }

// Mismatch returns a copy of the mismatch info and whether it is present.
func (r Record) Mismatch() (map[string]any, bool) {
	if r.mismatch == nil {
		return nil, false
	}
	return copyMap(r.mismatch), true
}

func (r Record) SchemaVersion() string { return r.schemaVersion }

// Equal reports whether two records carry the same data.
func (r Record) Equal(other Record) bool {
	return reflect.DeepEqual(r, other)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
