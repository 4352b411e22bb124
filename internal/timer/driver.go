package timer

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultResolution  = 50 * time.Millisecond
	DefaultIdleTimeout = 30 * time.Second
)

// ThreadDriver polls on a dedicated goroutine. The goroutine retires after the
// registry has been idle for idleTimeout and is recreated on the next Activate.
type ThreadDriver struct {
	resolution  time.Duration
	idleTimeout time.Duration

	mu        sync.Mutex
	tick      func()
	active    bool
	alive     bool
	closed    bool
	idleSince time.Time
	quit      chan struct{}
	wg        sync.WaitGroup
}

func NewThreadDriver(resolution, idleTimeout time.Duration) *ThreadDriver {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	if idleTimeout < 0 {
		idleTimeout = 0
	}
	return &ThreadDriver{
		resolution:  resolution,
		idleTimeout: idleTimeout,
		quit:        make(chan struct{}),
	}
}

func (d *ThreadDriver) Activate(tick func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.tick = tick
	d.active = true
	if !d.alive {
		d.alive = true
		d.wg.Add(1)
		go d.loop()
	}
}

func (d *ThreadDriver) Deactivate() {
	d.mu.Lock()
	d.active = false
	d.idleSince = time.Now()
	d.mu.Unlock()
}

// Alive reports whether the polling goroutine exists.
func (d *ThreadDriver) Alive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive
}

// Close stops the goroutine and waits for it to exit.
func (d *ThreadDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.quit)
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

func (d *ThreadDriver) loop() {
	defer d.wg.Done()
	wait := time.NewTimer(d.resolution)
	defer wait.Stop()
	for {
		started := time.Now()
		d.mu.Lock()
		if d.closed || (!d.active && time.Since(d.idleSince) >= d.idleTimeout) {
			d.alive = false
			d.mu.Unlock()
			return
		}
		tick, active := d.tick, d.active
		d.mu.Unlock()

		if active && tick != nil {
			tick()
		}

		sleep := d.resolution - time.Since(started)
		if sleep < 0 {
			sleep = 0
		}
		wait.Reset(sleep)
		select {
		case <-d.quit:
			d.mu.Lock()
			d.alive = false
			d.mu.Unlock()
			return
		case <-wait.C:
		}
	}
}

// LoopDriver is polled by a loop the host owns, either through Run or by
// calling Registry.Tick directly.
type LoopDriver struct {
	resolution time.Duration

	mu     sync.Mutex
	tick   func()
	active bool
}

func NewLoopDriver(resolution time.Duration) *LoopDriver {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &LoopDriver{resolution: resolution}
}

func (d *LoopDriver) Activate(tick func()) {
	d.mu.Lock()
	d.tick = tick
	d.active = true
	d.mu.Unlock()
}

func (d *LoopDriver) Deactivate() {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()
}

func (d *LoopDriver) Close() error { return nil }

func (d *LoopDriver) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Run polls at the driver resolution until ctx is done.
func (d *LoopDriver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.resolution)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.mu.Lock()
			tick, active := d.tick, d.active
			d.mu.Unlock()
			if active && tick != nil {
				tick()
			}
		}
	}
}
