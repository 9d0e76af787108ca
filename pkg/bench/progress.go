/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bench

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Progress renders a periodic one-line status while a batch runs. The
// live percentiles come from an HDR histogram (cheap to record under
// concurrency, approximate to three significant figures); the final
// report computes exact interpolated percentiles over the full sample.
type Progress struct {
	w     io.Writer
	total int
	start time.Time

	completed int64
	failed    int64

	mu   sync.Mutex
	hist *hdrhistogram.Histogram

	done chan struct{}
	wg   sync.WaitGroup
}

// NewProgress returns a Progress writing to w. A nil Observer on the
// Driver is the way to run silently; Progress always renders.
func NewProgress(w io.Writer, total int) *Progress {
	return &Progress{
		w: w,
		// 1us to 10min at 3 significant figures
		hist:  hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
		total: total,
		done:  make(chan struct{}),
	}
}

// Observe implements Observer.
func (p *Progress) Observe(o RequestOutcome) {
	if o.Succeeded() {
		atomic.AddInt64(&p.completed, 1)
		p.mu.Lock()
		_ = p.hist.RecordValue(int64(o.E2ELatency * float64(time.Second/time.Microsecond)))
		p.mu.Unlock()
	} else {
		atomic.AddInt64(&p.failed, 1)
	}
}

// Start begins the ticker loop. Stop must be called to end it.
func (p *Progress) Start() {
	p.start = time.Now()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				p.renderLine()
			}
		}
	}()
}

// Stop ends the ticker loop and terminates the status line.
func (p *Progress) Stop() {
	close(p.done)
	p.wg.Wait()
	fmt.Fprintf(p.w, "\n")
}

func (p *Progress) renderLine() {
	completed := atomic.LoadInt64(&p.completed)
	failed := atomic.LoadInt64(&p.failed)
	elapsed := time.Since(p.start).Seconds()

	rps := float64(0)
	if elapsed > 0 {
		rps = float64(completed+failed) / elapsed
	}

	p.mu.Lock()
	p50 := float64(p.hist.ValueAtQuantile(50)) / 1000.0
	p99 := float64(p.hist.ValueAtQuantile(99)) / 1000.0
	p.mu.Unlock()

	fmt.Fprintf(p.w, "\r%d/%d done | %d errors | %.1f req/s | p50 %.0fms p99 %.0fms     ",
		completed+failed, p.total, failed, rps, p50, p99)
}
