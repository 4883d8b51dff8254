package oai

import (
	"errors"
	"time"

	"github.com/jinzhu/now"
)

const oneDay = 24 * time.Hour

var ErrInvalidWindow = errors.New("oai: window from is after until")

// Window is an inclusive span of time used to slice a large harvest into
// calendar-aligned runs.
type Window struct {
	From  time.Time
	Until time.Time
}

type shiftFunc func(time.Time) time.Time

func (w Window) split(left, right shiftFunc) ([]Window, error) {
	if w.From.After(w.Until) {
		return nil, ErrInvalidWindow
	}
	var (
		windows    []Window
		start, end time.Time
		from       = w.From
	)
	for {
		if len(windows) == 0 {
			start = now.New(w.From).BeginningOfDay()
		} else {
			start = left(from)
		}
		end = right(from)
		if end.After(w.Until) {
			windows = append(windows, Window{From: start, Until: now.New(w.Until).EndOfDay()})
			break
		}
		windows = append(windows, Window{From: start, Until: end})
		from = end.Add(oneDay)
	}
	return windows, nil
}

// Monthly slices the window into calendar months. The first and last slices
// are clipped to the window bounds.
func (w Window) Monthly() ([]Window, error) {
	return w.split(
		func(t time.Time) time.Time { return now.New(t).BeginningOfMonth() },
		func(t time.Time) time.Time { return now.New(t).EndOfMonth() },
	)
}

// Weekly slices the window into calendar weeks.
func (w Window) Weekly() ([]Window, error) {
	return w.split(
		func(t time.Time) time.Time { return now.New(t).BeginningOfWeek() },
		func(t time.Time) time.Time { return now.New(t).EndOfWeek() },
	)
}
