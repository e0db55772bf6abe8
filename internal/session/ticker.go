package session

import "time"

// Ticker is the subset of *time.Ticker the refresh timer uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func stdTicker(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }
