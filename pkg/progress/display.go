package progress

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Display receives progress updates. It is only ever driven by one goroutine.
type Display interface {
	// Add advances the display by n items
	Add(n int)

	// Close finishes the display
	Close()
}

// Discard ignores all progress
type Discard struct{}

func (Discard) Add(int) {}
func (Discard) Close()  {}

// Terminal prints a single self-overwriting progress line
type Terminal struct {
	w     io.Writer
	label string
	total int
	done  int
}

// NewTerminal creates a terminal display for total items
func NewTerminal(w io.Writer, label string, total int) *Terminal {
	return &Terminal{w: w, label: label, total: total}
}

func (t *Terminal) Add(n int) {
	t.done += n
	progress := 100.0
	if t.total > 0 {
		progress = float64(t.done) / float64(t.total) * 100
	}
	fmt.Fprintf(t.w, "\r%s: %.1f%% complete", t.label, progress)
}

func (t *Terminal) Close() {
	fmt.Fprintln(t.w)
}

// Log reports progress through a logger in steps of ten percent
type Log struct {
	logger logrus.FieldLogger
	total  int
	done   int
	step   int
}

// NewLog creates a logging display for total items
func NewLog(logger logrus.FieldLogger, total int) *Log {
	return &Log{logger: logger, total: total}
}

func (l *Log) Add(n int) {
	l.done += n
	if l.total <= 0 {
		return
	}
	step := l.done * 10 / l.total
	if step > l.step {
		l.step = step
		l.logger.WithFields(logrus.Fields{
			"done":  l.done,
			"total": l.total,
		}).Infof("progress %d%%", step*10)
	}
}

func (l *Log) Close() {
	l.logger.WithField("done", l.done).Debug("progress finished")
}

// Counter records every update. It is mainly useful in tests.
type Counter struct {
	Total  int64
	Adds   int
	Closed int
}

func (c *Counter) Add(n int) {
	c.Total += int64(n)
	c.Adds++
}

func (c *Counter) Close() {
	c.Closed++
}
