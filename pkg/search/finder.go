package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/Amr-9/KeyHunter/pkg/address"
)

// DefaultStatusInterval is how often status snapshots are emitted.
const DefaultStatusInterval = time.Second

// State is the lifecycle position of a Finder.
type State int

const (
	Idle        State = iota // constructed, nothing bound on the device yet
	Initialized              // targets loaded and device initialised
	Running                  // inside Run
	Stopped                  // halted: stop requested or no targets left
	Exhausted                // keyspace consumed without continuation
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Config holds the construction parameters of a Finder.
type Config struct {
	Keyspace    Keyspace
	Compression CompressionMode

	// Stride is used as-is unless RandomStride is set.
	Stride           *uint256.Int
	RandomStride     bool
	RandomStrideBits uint

	// ContinueAfterEnd restrides instead of stopping when the keyspace is
	// exhausted. It only takes effect together with RandomStride.
	ContinueAfterEnd bool

	StatusInterval time.Duration

	Logger logrus.FieldLogger
	Rand   io.Reader        // random stride source, crypto/rand when nil
	Now    func() time.Time // clock, time.Now when nil
}

// Finder drives one device through a keyspace until every target is found, the
// keyspace is exhausted or Stop is called.
type Finder struct {
	device   Device
	keyspace Keyspace
	mode     CompressionMode
	strides  *StrideManager
	cont     bool
	interval time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	targets *TargetSet
	state   State
	stop    atomic.Bool

	onStatus func(Status)
	onResult func(Result)

	iterations uint64
	total      uint64
	totalTime  time.Duration
}

// New binds a device and keyspace. Targets must be loaded and Init called before Run.
func New(device Device, cfg Config) (*Finder, error) {
	if device == nil {
		return nil, &ConfigError{Msg: "device is required"}
	}
	if err := cfg.Keyspace.Validate(); err != nil {
		return nil, err
	}
	if cfg.Compression < Compressed || cfg.Compression > Both {
		return nil, &ConfigError{Msg: fmt.Sprintf("invalid compression mode %d", cfg.Compression)}
	}

	var (
		strides *StrideManager
		err     error
	)
	if cfg.RandomStride {
		strides, err = NewRandomStride(cfg.RandomStrideBits, cfg.Rand)
	} else {
		strides, err = NewFixedStride(cfg.Stride)
	}
	if err != nil {
		return nil, err
	}

	f := &Finder{
		device:   device,
		keyspace: Keyspace{Start: cfg.Keyspace.Start.Clone(), End: cfg.Keyspace.End.Clone()},
		mode:     cfg.Compression,
		strides:  strides,
		cont:     cfg.ContinueAfterEnd,
		interval: cfg.StatusInterval,
		log:      cfg.Logger,
		now:      cfg.Now,
		targets:  NewTargetSet(),
		onStatus: func(Status) {},
		onResult: func(Result) {},
	}
	if f.interval <= 0 {
		f.interval = DefaultStatusInterval
	}
	if f.log == nil {
		f.log = logrus.StandardLogger()
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f, nil
}

// SetStatusCallback registers the status callback. It runs on the loop goroutine and
// must return quickly.
func (f *Finder) SetStatusCallback(cb func(Status)) {
	if cb == nil {
		cb = func(Status) {}
	}
	f.onStatus = cb
}

// SetResultCallback registers the result callback. It runs on the loop goroutine and
// must return quickly.
func (f *Finder) SetResultCallback(cb func(Result)) {
	if cb == nil {
		cb = func(Result) {}
	}
	f.onResult = cb
}

// SetStatusInterval changes the status cadence.
func (f *Finder) SetStatusInterval(d time.Duration) {
	if d > 0 {
		f.interval = d
	}
}

// SetTargets replaces the target set with the given addresses and installs it on the
// device. Nothing is replaced if any address is invalid.
func (f *Finder) SetTargets(addrs []string) error {
	set, err := ParseTargets(addrs)
	if err != nil {
		return err
	}
	return f.installTargets(set)
}

// SetTargetsFile loads targets from a file with one address per line.
func (f *Finder) SetTargetsFile(path string) error {
	f.log.Infof("Loading addresses from '%s'", path)

	set, err := ReadTargetsFile(path)
	if err != nil {
		return err
	}
	f.log.Infof("%d addresses loaded (%.1fMB)", set.Len(), float64(set.SizeBytes())/(1024*1024))

	return f.installTargets(set)
}

func (f *Finder) installTargets(set *TargetSet) error {
	if err := f.device.SetTargets(set.Hashes()); err != nil {
		return &DeviceError{Op: "set targets", Device: f.device.Name(), Err: err}
	}
	f.targets = set
	return nil
}

// Init hands the starting key, compression mode and stride to the device.
func (f *Finder) Init() error {
	if f.targets.Len() == 0 {
		return &ConfigError{Err: ErrNoTargets}
	}

	f.log.Infof("Initializing %s", f.device.Name())

	if err := f.device.Init(f.keyspace.Start.Clone(), f.mode, f.strides.Stride()); err != nil {
		return &DeviceError{Op: "init", Device: f.device.Name(), Err: err}
	}
	f.state = Initialized
	return nil
}

// Stop asks Run to return at the next iteration boundary. Safe to call from any
// goroutine, including before Run starts.
func (f *Finder) Stop() {
	f.stop.Store(true)
}

// State returns the lifecycle state. It is only meaningful between Run calls or
// from the callbacks.
func (f *Finder) State() State { return f.state }

// Targets returns the number of targets still being searched for.
func (f *Finder) Targets() int { return f.targets.Len() }

// Contains reports whether h is still a target.
func (f *Finder) Contains(h address.Hash160) bool { return f.targets.Contains(h) }

// Stride returns the active stride.
func (f *Finder) Stride() *uint256.Int { return f.strides.Stride() }

// Restrides returns how many times the stride was reseeded.
func (f *Finder) Restrides() uint64 { return f.strides.Restrides() }

// Keyspace returns the searched range.
func (f *Finder) Keyspace() Keyspace { return f.keyspace }

// NextKey returns the device cursor.
func (f *Finder) NextKey() *uint256.Int { return f.device.NextKey() }

// Run steps the device until the search ends. It returns nil when the run ends in
// Stopped or Exhausted and a *DeviceError when the device fails; device failures
// are never retried. Cancelling ctx acts like Stop.
func (f *Finder) Run(ctx context.Context) error {
	if f.state != Initialized {
		return ErrNotInitialized
	}
	f.state = Running

	keysPerStep := f.device.KeysPerStep()
	prevIterations := f.iterations
	f.total = 0
	f.totalTime = 0
	last := f.now()

	for f.state == Running {
		if err := f.device.Step(); err != nil {
			return f.fail("step", err)
		}
		f.iterations++

		now := f.now()
		if elapsed := now.Sub(last); elapsed >= f.interval {
			count := (f.iterations - prevIterations) * keysPerStep
			if err := f.emitStatus(count, elapsed); err != nil {
				return err
			}
			last = now
			prevIterations = f.iterations
		}

		if err := f.collectResults(); err != nil {
			return err
		}

		if f.targets.Len() == 0 {
			f.log.Info("No targets remaining")
			f.state = Stopped
			break
		}

		if f.keyspace.Exhausted(f.device.NextKey()) {
			if err := f.handleExhaustion(); err != nil {
				return err
			}
		}

		if f.stop.Load() || ctx.Err() != nil {
			f.state = Stopped
		}
	}

	return nil
}

// emitStatus assembles and publishes a snapshot covering count keys over elapsed.
func (f *Finder) emitStatus(count uint64, elapsed time.Duration) error {
	free, total, err := f.device.MemoryInfo()
	if err != nil {
		return f.fail("memory info", err)
	}

	f.total += count
	f.totalTime += elapsed

	var speed float64
	if seconds := elapsed.Seconds(); seconds > 0 {
		speed = float64(count) / seconds / 1e6
	}

	f.onStatus(Status{
		Speed:        speed,
		Total:        f.total,
		TotalTime:    f.totalTime,
		DeviceName:   f.device.Name(),
		FreeMemory:   free,
		DeviceMemory: total,
		Targets:      f.targets.Len(),
		NextKey:      f.device.NextKey(),
		Stride:       f.strides.Stride(),
		Restrides:    f.strides.Restrides(),
	})
	return nil
}

// collectResults reports each match whose hash is still a target, then prunes the
// reported hashes from both the target set and the device.
func (f *Finder) collectResults() error {
	matches, err := f.device.Results()
	if err != nil {
		return f.fail("results", err)
	}
	if len(matches) == 0 {
		return nil
	}

	removed := 0
	for _, m := range matches {
		if !f.targets.Contains(m.Hash) {
			continue
		}

		f.onResult(Result{
			PrivateKey: m.PrivateKey.Clone(),
			PublicKey:  m.PublicKey,
			Compressed: m.Compressed,
			Address:    address.FromPublicKey(m.PublicKey, m.Compressed),
		})

		f.targets.Remove(m.Hash)
		removed++
	}

	if removed > 0 && f.targets.Len() > 0 {
		if err := f.device.SetTargets(f.targets.Hashes()); err != nil {
			return f.fail("set targets", err)
		}
	}
	return nil
}

// handleExhaustion restrides when continuation applies and ends the run otherwise.
func (f *Finder) handleExhaustion() error {
	if !f.cont || !f.strides.Random() {
		f.log.Info("Reached end of keyspace")
		f.state = Exhausted
		return nil
	}

	stride, err := f.strides.Reseed()
	if errors.Is(err, ErrStrideSpace) {
		f.log.Info("Reached end of keyspace, no unused strides remain")
		f.state = Exhausted
		return nil
	}
	if err != nil {
		f.state = Stopped
		return err
	}

	f.log.WithFields(logrus.Fields{
		"stride":    stride.Hex(),
		"restrides": f.strides.Restrides(),
	}).Debug("Continuing after end with new stride")

	if err := f.device.UpdateStride(stride); err != nil {
		return f.fail("update stride", err)
	}
	return nil
}

func (f *Finder) fail(op string, err error) error {
	f.state = Stopped
	return &DeviceError{Op: op, Device: f.device.Name(), Err: err}
}
