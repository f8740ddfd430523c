package contracts

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/Mindburn-Labs/decision-schema/pkg/canonicalize"
)

// MaxLineBytes bounds a single record line accepted by Decoder.
const MaxLineBytes = 16 << 20

// Encoder writes records as newline-delimited canonical JSON. It is safe for
// concurrent use; each record is written as one complete line.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
	n  int
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes r as a single canonical JSON line.
func (e *Encoder) Encode(r Record) error {
	line, err := canonicalize.JCS(Serialize(r))
	if err != nil {
		return fmt.Errorf("encode record %s/%d: %w", r.runID, r.step, err)
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(line); err != nil {
		return fmt.Errorf("write record %s/%d: %w", r.runID, r.step, err)
	}
	e.n++
	return nil
}

// Count returns the number of records written so far.
func (e *Encoder) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

// LineError locates a decode failure within a stream.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Decoder reads newline-delimited records. Blank lines are skipped.
type Decoder struct {
	sc   *bufio.Scanner
	line int
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return &Decoder{sc: sc}
}

// Next returns the next non-blank line, trimmed, without decoding it, or
// io.EOF when the stream is exhausted. The slice is only valid until the
// following call. Read failures are reported as *LineError.
func (d *Decoder) Next() ([]byte, error) {
	for d.sc.Scan() {
		d.line++
		raw := bytes.TrimSpace(d.sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		return raw, nil
	}
	if err := d.sc.Err(); err != nil {
		return nil, &LineError{Line: d.line + 1, Err: err}
	}
	return nil, io.EOF
}

// Decode returns the next record, or io.EOF when the stream is exhausted.
// Malformed lines are reported as *LineError wrapping ErrMalformedRecord; the
// decoder can keep going past them.
func (d *Decoder) Decode() (Record, error) {
	raw, err := d.Next()
	if err != nil {
		return Record{}, err
	}
	rec, err := ParseLine(raw)
	if err != nil {
		return Record{}, &LineError{Line: d.line, Err: err}
	}
	return rec, nil
}

// Line returns the number of the last line read.
func (d *Decoder) Line() int { return d.line }

// ReadAll decodes every record in r, stopping at the first error.
func ReadAll(r io.Reader) ([]Record, error) {
	dec := NewDecoder(r)
	var out []Record
	for {
		rec, err := dec.Decode()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
