package contracts

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/decision-schema/pkg/version"
)

func sampleRecord(opts ...RecordOption) Record {
	return NewRecord(
		"run-1",
		3,
		map[string]any{"signal": "up", "window": []any{"a", "b"}},
		map[string]any{"harness.fail_closed": true, "region": "eu"},
		map[string]any{"action": "ACT", "confidence": 0.7},
		map[string]any{"action": "HOLD", "allowed": false},
		12,
		opts...,
	)
}

func TestNewRecord_Defaults(t *testing.T) {
	r := NewRecord("run-1", 0, nil, nil, nil, nil, 0)

	assert.Equal(t, "run-1", r.RunID())
	assert.Equal(t, int64(0), r.Step())
	assert.Equal(t, map[string]any{}, r.Input())
	assert.Equal(t, map[string]any{}, r.Context())
	assert.Equal(t, map[string]any{}, r.Intermediate())
	assert.Equal(t, map[string]any{}, r.FinalAction())
	assert.Equal(t, version.Current(), r.SchemaVersion())

	m, ok := r.Mismatch()
	assert.False(t, ok)
	assert.Nil(t, m)
}

func TestNewRecord_CopiesPayloads(t *testing.T) {
	input := map[string]any{"nested": map[string]any{"k": "v"}, "list": []any{1}}
	r := NewRecord("run-1", 1, input, nil, nil, nil, 5)

	input["nested"].(map[string]any)["k"] = "changed"
	input["list"].([]any)[0] = 2
	input["extra"] = true

	got := r.Input()
	assert.Equal(t, map[string]any{"nested": map[string]any{"k": "v"}, "list": []any{1}}, got)

	// accessors hand out copies too
	got["extra"] = true
	assert.NotContains(t, r.Input(), "extra")
}

func TestNewRecord_Options(t *testing.T) {
	r := sampleRecord(
		WithMismatch(map[string]any{"flags": []any{"throttled"}}),
		WithSchemaVersion("0.1.0"),
	)
	m, ok := r.Mismatch()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"flags": []any{"throttled"}}, m)
	assert.Equal(t, "0.1.0", r.SchemaVersion())

	empty := sampleRecord(WithMismatch(map[string]any{}))
	m, ok = empty.Mismatch()
	assert.True(t, ok, "an empty mismatch map is still present")
	assert.Empty(t, m)

	absent := sampleRecord(WithMismatch(nil))
	_, ok = absent.Mismatch()
	assert.False(t, ok)
}

func TestRecord_Equal(t *testing.T) {
	assert.True(t, sampleRecord().Equal(sampleRecord()))
	assert.False(t, sampleRecord().Equal(sampleRecord(WithSchemaVersion("0.1.0"))))
	assert.False(t, sampleRecord().Equal(sampleRecord(WithMismatch(map[string]any{}))))
}

func TestSerialize_Shape(t *testing.T) {
	m := Serialize(sampleRecord())

	assert.Len(t, m, 9)
	assert.Equal(t, "run-1", m[FieldRunID])
	assert.Equal(t, int64(3), m[FieldStep])
	assert.Equal(t, int64(12), m[FieldLatencyMs])
	assert.Equal(t, version.Current(), m[FieldSchemaVersion])
	assert.Equal(t, map[string]any{"harness.fail_closed": true, "region": "eu"}, m[FieldContext])

	v, ok := m[FieldMismatch]
	require.True(t, ok, "mismatch is always emitted")
	assert.Nil(t, v)

	// the result does not alias the record
	m[FieldInput].(map[string]any)["signal"] = "down"
	assert.Equal(t, "up", sampleRecord().Input()["signal"])
}

func TestSerialize_Deserialize_RoundTrip(t *testing.T) {
	cases := map[string]Record{
		"plain":          sampleRecord(),
		"with mismatch":  sampleRecord(WithMismatch(map[string]any{"reason_codes": []any{"limit"}})),
		"empty mismatch": sampleRecord(WithMismatch(map[string]any{})),
		"old version":    sampleRecord(WithSchemaVersion("0.1.0")),
		"empty version":  sampleRecord(WithSchemaVersion("")),
		"empty payloads": NewRecord("", 0, nil, nil, nil, nil, 0),
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Deserialize(Serialize(r))
			require.NoError(t, err)
			assert.True(t, r.Equal(got), "round trip changed the record")
		})
	}
}

func TestDeserialize_SchemaVersionDefault(t *testing.T) {
	m := Serialize(sampleRecord(WithSchemaVersion("0.1.0")))

	delete(m, FieldSchemaVersion)
	r, err := Deserialize(m)
	require.NoError(t, err)
	assert.Equal(t, version.Current(), r.SchemaVersion())

	m[FieldSchemaVersion] = nil
	r, err = Deserialize(m)
	require.NoError(t, err)
	assert.Equal(t, version.Current(), r.SchemaVersion())
}

func TestDeserialize_MismatchAbsentOrNull(t *testing.T) {
	m := Serialize(sampleRecord())
	delete(m, FieldMismatch)
	r, err := Deserialize(m)
	require.NoError(t, err)
	_, ok := r.Mismatch()
	assert.False(t, ok)
}

func TestDeserialize_DoesNotMutateInput(t *testing.T) {
	m := Serialize(sampleRecord())
	delete(m, FieldSchemaVersion)
	before := Serialize(sampleRecord())
	delete(before, FieldSchemaVersion)

	r, err := Deserialize(m)
	require.NoError(t, err)
	assert.Equal(t, before, m)

	m[FieldContext].(map[string]any)["region"] = "us"
	assert.Equal(t, "eu", r.Context()["region"])
}

func TestDeserialize_AcceptsDecodedJSONNumbers(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"runId": "r", "step": 4, "input": {}, "context": {}, "intermediate": {},
		"finalAction": {}, "latencyMs": 7.0
	}`), &m))

	r, err := Deserialize(m)
	require.NoError(t, err)
	assert.Equal(t, int64(4), r.Step())
	assert.Equal(t, int64(7), r.LatencyMs())
}

func TestDeserialize_Malformed(t *testing.T) {
	valid := func() map[string]any { return Serialize(sampleRecord()) }

	cases := []struct {
		name    string
		mutate  func(m map[string]any)
		field   string
		contain string
	}{
		{"missing runId", func(m map[string]any) { delete(m, FieldRunID) }, "", "runId"},
		{"missing context", func(m map[string]any) { delete(m, FieldContext) }, "", "context"},
		{"unknown field", func(m map[string]any) { m["extra"] = 1 }, "", "extra"},
		{"step not integer", func(m map[string]any) { m[FieldStep] = "3" }, FieldStep, ""},
		{"fractional step", func(m map[string]any) { m[FieldStep] = 1.5 }, FieldStep, ""},
		{"negative latency", func(m map[string]any) { m[FieldLatencyMs] = int64(-5) }, FieldLatencyMs, ""},
		{"runId not string", func(m map[string]any) { m[FieldRunID] = 7 }, FieldRunID, ""},
		{"input not object", func(m map[string]any) { m[FieldInput] = []any{} }, FieldInput, ""},
		{"context null", func(m map[string]any) { m[FieldContext] = nil }, FieldContext, ""},
		{"mismatch list", func(m map[string]any) { m[FieldMismatch] = []any{} }, FieldMismatch, ""},
		{"schemaVersion number", func(m map[string]any) { m[FieldSchemaVersion] = 2 }, FieldSchemaVersion, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := valid()
			tc.mutate(m)
			_, err := Deserialize(m)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord))

			var mre *MalformedRecordError
			require.True(t, errors.As(err, &mre))
			if tc.field != "" {
				assert.Equal(t, tc.field, mre.Field)
			}
			if tc.contain != "" {
				assert.Contains(t, err.Error(), tc.contain)
			}
		})
	}
}

func TestDeserialize_Nil(t *testing.T) {
	_, err := Deserialize(nil)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDeserialize_NonJSONValue(t *testing.T) {
	m := Serialize(sampleRecord())
	m[FieldInput] = map[string]string{"a": "b"}
	_, err := Deserialize(m)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestRecordSchema_IsCopy(t *testing.T) {
	b := RecordSchema()
	require.True(t, json.Valid(b))
	b[0] = 'x'
	assert.True(t, json.Valid(RecordSchema()))
}

func TestDeserialize_NegativeStepRoundTrips(t *testing.T) {
	r := NewRecord("run", -1, nil, nil, nil, nil, 0)
	got, err := Deserialize(Serialize(r))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got.Step())
	assert.True(t, got.Equal(r))

	line, err := ParseLine([]byte(`{"runId":"r","step":-3,"input":{},"context":{},"intermediate":{},"finalAction":{},"latencyMs":0}`))
	require.NoError(t, err)
	assert.Equal(t, int64(-3), line.Step())
}
