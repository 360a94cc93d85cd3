package recognition

import (
	"math"
	"sync"
)

// Job is a single in-flight extraction. Progress events arrive on Progress,
// which is closed before the terminal result becomes available from Wait.
type Job struct {
	progress chan int
	done     chan struct{}

	mu     sync.Mutex
	last   int
	closed bool

	text string
	err  error
}

func newJob() *Job {
	return &Job{
		// every distinct percentage fits, so a slow consumer never stalls the engine
		progress: make(chan int, 101),
		done:     make(chan struct{}),
		last:     -1,
	}
}

// Progress returns the stream of non-decreasing percentages in [0,100].
func (j *Job) Progress() <-chan int { return j.progress }

// Done is closed once the result is available.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the engine returns and yields the recognized text verbatim.
func (j *Job) Wait() (string, error) {
	<-j.done
	return j.text, j.err
}

// report forwards a recognizing-phase status as a percentage. Repeated or
// lower values are dropped.
func (j *Job) report(s Status) (int, bool) {
	if s.Phase != PhaseRecognizing {
		return 0, false
	}
	pct := percent(s.Progress)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || pct <= j.last {
		return 0, false
	}
	j.last = pct
	j.progress <- pct
	return pct, true
}

func (j *Job) closeProgress() {
	j.mu.Lock()
	j.closed = true
	close(j.progress)
	j.mu.Unlock()
}

func (j *Job) finish(text string, err error) {
	j.text, j.err = text, err
	close(j.done)
}

func percent(f float64) int {
	if math.IsNaN(f) {
		return 0
	}
	p := int(math.Round(f * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
