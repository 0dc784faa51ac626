package monitoring

import "time"

// Clock источник времени и тикеров. В тестах подменяется виртуальным временем.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker минимальный интерфейс time.Ticker
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock системное время
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }

func (r *realTicker) Stop() { r.t.Stop() }
