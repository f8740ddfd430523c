package contracts

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Step is the per-step payload a producer hands to a Recorder.
type Step struct {
	Input        map[string]any
	Context      map[string]any
	Intermediate map[string]any
	FinalAction  map[string]any
	// Mismatch is nil when the guard layer changed nothing.
	Mismatch map[string]any
}

// Recorder stamps successive decision steps of one run with a run id, a step
// index and the measured latency, and optionally streams them to an Encoder.
type Recorder struct {
	mu    sync.Mutex
	runID string
	step  int64
	clock func() time.Time
	enc   *Encoder
}

// NewRecorder creates a recorder for runID. An empty runID gets a random UUID.
func NewRecorder(runID string) *Recorder {
	if runID == "" {
		runID = uuid.New().String()
	}
	return &Recorder{
		runID: runID,
		clock: time.Now,
	}
}

// WithClock overrides the clock for testing.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

// WithEncoder streams every recorded step to enc.
func (r *Recorder) WithEncoder(enc *Encoder) *Recorder {
	r.enc = enc
	return r
}

func (r *Recorder) RunID() string { return r.runID }

// Now reads the recorder clock; pass the result to Record as the step start.
func (r *Recorder) Now() time.Time { return r.clock() }

// Record builds the next record of the run. Steps are numbered from 0 and
// latency is the whole milliseconds elapsed since started, floored at 0. When
// an encoder is attached the record is returned even if writing it fails.
func (r *Recorder) Record(started time.Time, s Step) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	latency := r.clock().Sub(started).Milliseconds()
	if latency < 0 {
		latency = 0
	}

	var opts []RecordOption
	if s.Mismatch != nil {
		opts = append(opts, WithMismatch(s.Mismatch))
	}
	rec := NewRecord(r.runID, r.step, s.Input, s.Context, s.Intermediate, s.FinalAction, latency, opts...)
	r.step++

	if r.enc != nil {
		if err := r.enc.Encode(rec); err != nil {
			return rec, fmt.Errorf("recorder %s: %w", r.runID, err)
		}
	}
	return rec, nil
}

// Count returns the number of steps recorded.
func (r *Recorder) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}
