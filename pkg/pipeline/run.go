package pipeline

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State names one stage of an export run.
type State string

// Run states, in execution order. Done and Failed are terminal.
const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateFetching       State = "fetching"
	StateEnriching      State = "enriching"
	StateTransforming   State = "transforming"
	StateExporting      State = "exporting"
	StateStoring        State = "storing"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Step records one completed stage for the run's step log.
type Step struct {
	State       State
	At          time.Time
	Elapsed     time.Duration
	Detail      string
	HeapDeltaMB float64
}

// String renders the step as one human-readable log line.
func (s Step) String() string {
	return fmt.Sprintf("%s %s: %s (%s, %+.1f MB heap)",
		s.At.Format("15:04:05.000"), s.State, s.Detail,
		s.Elapsed.Round(time.Millisecond), s.HeapDeltaMB)
}

// Run tracks one export execution from idle to a terminal state. A run is
// owned by a single Execute call and is not safe for concurrent use.
type Run struct {
	ID          string
	Environment string
	State       State
	StartedAt   time.Time

	steps      []Step
	stageStart time.Time
	stageHeap  uint64
	peakHeap   uint64
	logger     zerolog.Logger
}

func newRun(env string, logger zerolog.Logger) *Run {
	id := uuid.NewString()
	return &Run{
		ID:          id,
		Environment: env,
		State:       StateIdle,
		StartedAt:   time.Now(),
		logger:      logger.With().Str("run_id", id).Logger(),
	}
}

// enter moves the run into a stage and snapshots the heap so the stage's
// allocation delta can be reported when it completes.
func (r *Run) enter(s State) {
	r.State = s
	r.stageStart = time.Now()
	r.stageHeap = heapAlloc()
	r.logger.Debug().Str("state", string(s)).Msg("stage started")
}

// complete records the active stage in the step log.
func (r *Run) complete(detail string) {
	heap := heapAlloc()
	if heap > r.peakHeap {
		r.peakHeap = heap
	}

	step := Step{
		State:       r.State,
		At:          time.Now(),
		Elapsed:     time.Since(r.stageStart),
		Detail:      detail,
		HeapDeltaMB: mib(int64(heap) - int64(r.stageHeap)),
	}
	r.steps = append(r.steps, step)
	stageDuration.WithLabelValues(string(step.State)).Observe(step.Elapsed.Seconds())

	r.logger.Info().
		Str("state", string(step.State)).
		Dur("elapsed", step.Elapsed).
		Msg(detail)
}

// fail records the failing stage with its error and moves the run to Failed.
func (r *Run) fail(err error) {
	r.complete(fmt.Sprintf("failed: %v", err))
	r.State = StateFailed
}

func (r *Run) done() {
	r.State = StateDone
}

// StepLog renders the ordered step log for response envelopes.
func (r *Run) StepLog() []string {
	out := make([]string, len(r.steps))
	for i, s := range r.steps {
		out[i] = s.String()
	}
	return out
}

// PeakHeapMB reports the largest heap allocation observed at any stage
// boundary, in MiB.
func (r *Run) PeakHeapMB() float64 {
	return mib(int64(r.peakHeap))
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// mib converts bytes to MiB rounded to one decimal. Negative deltas are
// possible when the collector ran during a stage.
func mib(b int64) float64 {
	return math.Round(float64(b)/(1<<20)*10) / 10
}
