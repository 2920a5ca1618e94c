package progress

import (
	"context"
	"sync"
	"time"
)

// Heartbeat defaults.
const (
	DefaultTick      = time.Second
	DefaultLogEvery  = 12 * time.Second
	DefaultHangAfter = 30 * time.Minute
)

// HeartbeatConfig configures a heartbeat that runs beside one blocking stage.
type HeartbeatConfig struct {
	Tick      time.Duration
	LogEvery  time.Duration
	HangAfter time.Duration

	// Signal is the stage's activity record. Required.
	Signal *Signal
	// Estimate returns the stage fraction for the elapsed time; nil means use Signal.Fraction.
	Estimate func(elapsed time.Duration) float64
	// OnProgress receives the re-estimated stage fraction on every tick.
	OnProgress func(fraction float64)
	// OnLog is called every LogEvery.
	OnLog func(elapsed time.Duration, fraction float64)
	// OnHang is called once when Signal has been idle longer than HangAfter; the heartbeat then exits.
	OnHang func(idle time.Duration)
}

// StartHeartbeat starts the heartbeat goroutine. The returned stop function ends it and waits for exit.
func StartHeartbeat(ctx context.Context, cfg HeartbeatConfig) func() {
	if cfg.Signal == nil {
		return func() {}
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = DefaultLogEvery
	}
	if cfg.HangAfter <= 0 {
		cfg.HangAfter = DefaultHangAfter
	}

	start := time.Now()
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		t := time.NewTicker(cfg.Tick)
		defer t.Stop()
		lastLog := start

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case now := <-t.C:
				elapsed := now.Sub(start)
				fraction := cfg.Signal.Fraction()
				if cfg.Estimate != nil {
					fraction = cfg.Estimate(elapsed)
				}
				if cfg.OnProgress != nil {
					cfg.OnProgress(fraction)
				}
				if cfg.OnLog != nil && now.Sub(lastLog) >= cfg.LogEvery {
					lastLog = now
					cfg.OnLog(elapsed, fraction)
				}
				if idle := cfg.Signal.Idle(); idle > cfg.HangAfter {
					if cfg.OnHang != nil {
						cfg.OnHang(idle)
					}
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-stopped
	}
}
