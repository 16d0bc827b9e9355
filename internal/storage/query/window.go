package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/sosodev/duration"
	"github.com/xtxerr/gridpower/internal/errors"
)

// Window is a query time range. Both bounds are exclusive.
type Window struct {
	From time.Time
	To   time.Time
}

// ParseWindow builds a window from request parameters. from is required.
// to is required unless period, an ISO-8601 duration such as "P1D", is
// given; period then replaces to.
func ParseWindow(from, to, period string) (Window, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	period = strings.TrimSpace(period)

	if from == "" {
		return Window{}, errors.NewMissingParam("from")
	}

	var w Window
	var err error

	if w.From, err = parseTime("from", from); err != nil {
		return Window{}, err
	}

	switch {
	case period != "":
		d, err := duration.Parse(period)
		if err != nil {
			return Window{}, errors.NewQueryInput("period", fmt.Sprintf("%q: %v", period, err))
		}
		w.To = w.From.Add(d.ToTimeDuration())
	case to != "":
		if w.To, err = parseTime("to", to); err != nil {
			return Window{}, err
		}
	default:
		return Window{}, errors.NewMissingParam("to")
	}

	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func parseTime(param, value string) (time.Time, error) {
	t, err := iso8601.ParseString(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q: %w: %w", param, value, errors.ErrInvalidTime, errors.ErrInvalidQuery)
	}
	return t, nil
}

// Validate rejects windows that end before they start.
func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return fmt.Errorf("window bounds unset: %w: %w", errors.ErrInvalidRange, errors.ErrInvalidQuery)
	}
	if w.To.Before(w.From) {
		return fmt.Errorf("to %s before from %s: %w: %w",
			w.To.Format(time.RFC3339), w.From.Format(time.RFC3339), errors.ErrInvalidRange, errors.ErrInvalidQuery)
	}
	return nil
}

// Bounds returns the window in unix seconds, each bound floored.
func (w Window) Bounds() (start, end int64) {
	return w.From.Unix(), w.To.Unix()
}

// String renders the window for logs.
func (w Window) String() string {
	return w.From.UTC().Format(time.RFC3339) + "/" + w.To.UTC().Format(time.RFC3339)
}
