// Package progress draws progress bars for long batch loops on stderr.
package progress

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker counts processed items. *progressbar.ProgressBar satisfies it.
type Tracker interface {
	Add(n int) error
	Finish() error
}

// Factory creates one Tracker per loop.
type Factory func(total int, description string) Tracker

// Bars returns a Factory drawing bars to w. A nil w yields silent trackers.
func Bars(w io.Writer) Factory {
	if w == nil {
		return Silent
	}
	return func(total int, description string) Tracker {
		return progressbar.NewOptions64(int64(total),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
}

// Silent returns a Tracker that does nothing.
func Silent(int, string) Tracker { return noop{} }

type noop struct{}

func (noop) Add(int) error  { return nil }
func (noop) Finish() error { return nil }
