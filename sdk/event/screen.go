package event

import "time"

type ScreenView struct {
	Timestamp      time.Time `json:"timestamp"`
	ScreenName     string    `json:"screenName"`
	PreviousScreen string    `json:"previousScreen,omitempty"`
	DurationMs     *int64    `json:"durationMs,omitempty"`
}

type ScreenOption func(*ScreenView)

func WithPreviousScreen(name string) ScreenOption {
	return func(s *ScreenView) { s.PreviousScreen = name }
}

// WithDuration sets the time spent on the previous screen.
func WithDuration(d time.Duration) ScreenOption {
	return func(s *ScreenView) {
		ms := d.Milliseconds()
		s.DurationMs = &ms
	}
}

func NewScreenView(ts time.Time, screenName string, opts ...ScreenOption) (ScreenView, error) {
	if screenName == "" {
		return ScreenView{}, missing("screen view", "screenName")
	}
	if ts.IsZero() {
		return ScreenView{}, missing("screen view", "timestamp")
	}

	s := ScreenView{
		Timestamp:  ts,
		ScreenName: screenName,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s, nil
}
