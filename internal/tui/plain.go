package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/san-kum/qclab/internal/driver"
)

const (
	plainWidth = 40
	hideCursor = "\033[?25l"
	showCursor = "\033[?25h"
)

// LineRenderer redraws a single progress line, for terminals where the full
// view is not wanted. It is safe to call from every rank.
type LineRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	title     string
	frameRate int
	lastFrame time.Time
	started   time.Time
}

func NewLineRenderer(out io.Writer, title string, frameRate int) *LineRenderer {
	if frameRate <= 0 {
		frameRate = 10
	}
	return &LineRenderer{out: out, title: title, frameRate: frameRate, started: time.Now()}
}

// OnBatch is a driver progress callback.
func (r *LineRenderer) OnBatch(p driver.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	last := p.Done == p.Total
	if !last && time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	fmt.Fprint(r.out, r.line(p))
	if last {
		fmt.Fprintln(r.out)
	}
}

func (r *LineRenderer) line(p driver.Progress) string {
	frac := 0.0
	if p.Total > 0 {
		frac = float64(p.Done) / float64(p.Total)
	}
	filled := int(frac * plainWidth)
	elapsed := time.Since(r.started).Round(100 * time.Millisecond)
	return fmt.Sprintf("\r  %s [%s%s] %d/%d %s",
		r.title, strings.Repeat("#", filled), strings.Repeat(".", plainWidth-filled), p.Done, p.Total, elapsed)
}

func (r *LineRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LineRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
