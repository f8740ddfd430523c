package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_JSONRoundTrip(t *testing.T) {
	r := sampleRecord(WithMismatch(map[string]any{"flags": []any{"clamped"}}))

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, r.RunID(), got.RunID())
	assert.Equal(t, r.Step(), got.Step())
	assert.Equal(t, r.LatencyMs(), got.LatencyMs())
	assert.Equal(t, r.Context(), got.Context())

	// numbers come back as json.Number, so compare canonical forms
	want, err := r.Fingerprint()
	require.NoError(t, err)
	have, err := got.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestRecord_UnmarshalKeepsIntegerPrecision(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"runId":"r","step":0,"input":{"id":9007199254740993},
		"context":{},"intermediate":{},"finalAction":{},"latencyMs":1}`), &r))
	assert.Equal(t, json.Number("9007199254740993"), r.Input()["id"])
}

func TestRecord_UnmarshalRejectsMalformed(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"runId":"r"}`), &r)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestParseLine(t *testing.T) {
	_, err := ParseLine([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = ParseLine([]byte(`null`))
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = ParseLine([]byte(`{"runId":`))
	assert.ErrorIs(t, err, ErrMalformedRecord)

	line, err := json.Marshal(sampleRecord())
	require.NoError(t, err)
	_, err = ParseLine(append(line, []byte(` {}`)...))
	assert.ErrorIs(t, err, ErrMalformedRecord, "trailing data")

	_, err = ParseLine(line)
	assert.NoError(t, err)
}

func TestFingerprint_StableAcrossKeyOrder(t *testing.T) {
	a := NewRecord("r", 1, map[string]any{"a": 1, "b": 2}, nil, nil, nil, 0)
	b := NewRecord("r", 1, map[string]any{"b": 2, "a": 1}, nil, nil, nil, 0)
	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	c := NewRecord("r", 2, map[string]any{"a": 1, "b": 2}, nil, nil, nil, 0)
	fc, err := c.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestEncoder_WritesCanonicalLines(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	r := NewRecord("r", 0, map[string]any{"z": 1, "a": "<x>"}, nil, nil, nil, 2)
	require.NoError(t, enc.Encode(r))
	require.NoError(t, enc.Encode(r))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		`{"context":{},"finalAction":{},"input":{"a":"<x>","z":1},"intermediate":{},"latencyMs":2,"mismatch":null,"runId":"r","schemaVersion":"0.2.0","step":0}`,
		lines[0])
	assert.Equal(t, lines[0], lines[1])
	assert.Equal(t, 2, enc.Count())
}

func TestEncoder_KeepsLargeIntegersExact(t *testing.T) {
	const big = int64(9007199254740993)
	r := NewRecord("run", big, map[string]any{"id": big, "max": int64(math.MaxInt64)}, nil, nil, nil, big)

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(r))
	assert.Contains(t, buf.String(), `"step":9007199254740993`)
	assert.Contains(t, buf.String(), `"id":9007199254740993`)

	got, err := NewDecoder(&buf).Decode()
	require.NoError(t, err)
	assert.Equal(t, big, got.Step())
	assert.Equal(t, big, got.LatencyMs())
	assert.Equal(t, json.Number("9007199254740993"), got.Input()["id"])
	assert.Equal(t, json.Number("9223372036854775807"), got.Input()["max"])

	want, err := r.Fingerprint()
	require.NoError(t, err)
	have, err := got.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, have)

	neighbour, err := NewRecord("run", big-1, map[string]any{"id": big - 1, "max": int64(math.MaxInt64)}, nil, nil, nil, big-1).Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, want, neighbour)
}

func TestEncoder_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(step int64) {
			defer wg.Done()
			assert.NoError(t, enc.Encode(NewRecord("r", step, nil, nil, nil, nil, 0)))
		}(int64(i))
	}
	wg.Wait()

	recs, err := ReadAll(&buf)
	require.NoError(t, err)
	assert.Len(t, recs, 20)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestEncoder_WriteError(t *testing.T) {
	enc := NewEncoder(failingWriter{})
	err := enc.Encode(sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, enc.Count())
}

func TestEncoder_UnencodablePayload(t *testing.T) {
	var buf bytes.Buffer
	err := NewEncoder(&buf).Encode(NewRecord("r", 0, map[string]any{"ch": make(chan int)}, nil, nil, nil, 0))
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestDecoder_SkipsBlankLinesAndReportsLineNumbers(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(NewRecord("r", 0, nil, nil, nil, nil, 0)))
	buf.WriteString("\n   \n")
	buf.WriteString(`{"runId":"r","step":"bad"}` + "\n")
	require.NoError(t, enc.Encode(NewRecord("r", 1, nil, nil, nil, nil, 0)))

	dec := NewDecoder(&buf)

	first, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Step())
	assert.Equal(t, 1, dec.Line())

	_, err = dec.Decode()
	var le *LineError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 4, le.Line)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	second, err := dec.Decode()
	require.NoError(t, err, "decoder continues after a bad line")
	assert.Equal(t, int64(1), second.Step())
	assert.Equal(t, 5, dec.Line())

	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_NextReturnsRawLines(t *testing.T) {
	dec := NewDecoder(strings.NewReader("\n  {\"a\":1}  \n\nnot json\n"))

	raw, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))
	assert.Equal(t, 2, dec.Line())

	raw, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "not json", string(raw))
	assert.Equal(t, 4, dec.Line())

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_LineTooLong(t *testing.T) {
	input := "\n" + strings.Repeat("x", MaxLineBytes+1) + "\n"
	_, err := NewDecoder(strings.NewReader(input)).Next()
	var le *LineError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 2, le.Line)
}

func TestDecoder_CRLF(t *testing.T) {
	line, err := json.Marshal(sampleRecord())
	require.NoError(t, err)
	recs, err := ReadAll(strings.NewReader(string(line) + "\r\n" + string(line) + "\r\n"))
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestReadAll_StopsAtFirstError(t *testing.T) {
	line, err := json.Marshal(sampleRecord())
	require.NoError(t, err)
	recs, err := ReadAll(strings.NewReader(string(line) + "\nnot json\n" + string(line)))
	require.Error(t, err)
	assert.Len(t, recs, 1)

	var le *LineError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 2, le.Line)
}
