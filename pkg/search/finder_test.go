package search

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amr-9/KeyHunter/pkg/address"
)

// fakeDevice advances a cursor by perStep*stride per step and reports scripted
// matches after given step numbers.
type fakeDevice struct {
	start   *uint256.Int
	cursor  *uint256.Int
	stride  *uint256.Int
	mode    CompressionMode
	perStep uint64

	targets         []address.Hash160
	setTargetsCalls int

	steps   int
	pending map[int][]Match
	updates []*uint256.Int

	stepErr    error
	memErr     error
	afterStep  func(step int)
	afterReset func()
}

func newFakeDevice(perStep uint64) *fakeDevice {
	return &fakeDevice{perStep: perStep, pending: make(map[int][]Match)}
}

func (d *fakeDevice) Init(start *uint256.Int, mode CompressionMode, stride *uint256.Int) error {
	d.start = start.Clone()
	d.cursor = start.Clone()
	d.stride = stride.Clone()
	d.mode = mode
	return nil
}

func (d *fakeDevice) Step() error {
	if d.stepErr != nil {
		return d.stepErr
	}
	d.steps++
	advance := new(uint256.Int).Mul(d.stride, uint256.NewInt(d.perStep))
	d.cursor.Add(d.cursor, advance)
	if d.afterStep != nil {
		d.afterStep(d.steps)
	}
	return nil
}

func (d *fakeDevice) Results() ([]Match, error) {
	m := d.pending[d.steps]
	delete(d.pending, d.steps)
	return m, nil
}

func (d *fakeDevice) SetTargets(targets []address.Hash160) error {
	d.targets = append([]address.Hash160(nil), targets...)
	d.setTargetsCalls++
	return nil
}

func (d *fakeDevice) NextKey() *uint256.Int { return d.cursor.Clone() }

func (d *fakeDevice) UpdateStride(stride *uint256.Int) error {
	d.stride = stride.Clone()
	d.cursor = d.start.Clone()
	d.updates = append(d.updates, stride.Clone())
	if d.afterReset != nil {
		d.afterReset()
	}
	return nil
}

func (d *fakeDevice) MemoryInfo() (uint64, uint64, error) {
	if d.memErr != nil {
		return 0, 0, d.memErr
	}
	return 512, 1024, nil
}

func (d *fakeDevice) Name() string        { return "fake" }
func (d *fakeDevice) KeysPerStep() uint64 { return d.perStep }

// fakeClock advances by tick on every reading.
type fakeClock struct {
	t    time.Time
	tick time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(c.tick)
	return c.t
}

func matchFor(t *testing.T, key uint64, compressed bool) (Match, string) {
	t.Helper()
	priv := uint256.NewInt(key)
	raw := priv.Bytes32()
	_, pub := btcec.PrivKeyFromBytes(raw[:])
	addr := address.FromPublicKey(pub, compressed)
	return Match{
		PrivateKey: priv,
		PublicKey:  pub,
		Compressed: compressed,
		Hash:       address.HashPublicKey(pub, compressed),
	}, addr
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newTestFinder(t *testing.T, dev Device, start, end uint64, mutate func(*Config)) *Finder {
	t.Helper()
	cfg := Config{
		Keyspace:    Keyspace{Start: uint256.NewInt(start), End: uint256.NewInt(end)},
		Compression: Compressed,
		Stride:      uint256.NewInt(1),
		Logger:      quietLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f, err := New(dev, cfg)
	require.NoError(t, err)
	return f
}

func TestNew_Validation(t *testing.T) {
	ks := Keyspace{Start: uint256.NewInt(1), End: uint256.NewInt(100)}

	tests := []struct {
		name string
		dev  Device
		cfg  Config
	}{
		{name: "nil device", dev: nil, cfg: Config{Keyspace: ks, Stride: uint256.NewInt(1)}},
		{name: "zero stride", dev: newFakeDevice(1), cfg: Config{Keyspace: ks, Stride: uint256.NewInt(0)}},
		{name: "missing stride", dev: newFakeDevice(1), cfg: Config{Keyspace: ks}},
		{name: "inverted keyspace", dev: newFakeDevice(1), cfg: Config{
			Keyspace: Keyspace{Start: uint256.NewInt(10), End: uint256.NewInt(5)},
			Stride:   uint256.NewInt(1),
		}},
		{name: "random bits out of range", dev: newFakeDevice(1), cfg: Config{
			Keyspace: ks, RandomStride: true, RandomStrideBits: 0,
		}},
		{name: "bad compression", dev: newFakeDevice(1), cfg: Config{
			Keyspace: ks, Stride: uint256.NewInt(1), Compression: CompressionMode(7),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.dev, tt.cfg)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestFinder_SetTargets(t *testing.T) {
	dev := newFakeDevice(1)
	f := newTestFinder(t, dev, 1, 100, nil)

	_, a := matchFor(t, 1, true)
	_, b := matchFor(t, 2, true)

	require.NoError(t, f.SetTargets([]string{a, b, a}))
	assert.Equal(t, 2, f.Targets())
	assert.Len(t, dev.targets, 2)
	assert.Equal(t, 1, dev.setTargetsCalls)
}

func TestFinder_SetTargets_InvalidKeepsPreviousSet(t *testing.T) {
	dev := newFakeDevice(1)
	f := newTestFinder(t, dev, 1, 100, nil)

	_, a := matchFor(t, 1, true)
	require.NoError(t, f.SetTargets([]string{a}))

	err := f.SetTargets([]string{a, "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMJ"})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	var invalid *InvalidAddressError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMJ", invalid.Address)

	assert.Equal(t, 1, f.Targets())
	assert.Equal(t, 1, dev.setTargetsCalls)
}

func TestFinder_SetTargets_Empty(t *testing.T) {
	f := newTestFinder(t, newFakeDevice(1), 1, 100, nil)

	err := f.SetTargets(nil)
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestFinder_InitRequiresTargets(t *testing.T) {
	f := newTestFinder(t, newFakeDevice(1), 1, 100, nil)

	err := f.Init()
	assert.ErrorIs(t, err, ErrNoTargets)
	assert.Equal(t, Idle, f.State())
}

func TestFinder_RunBeforeInit(t *testing.T) {
	f := newTestFinder(t, newFakeDevice(1), 1, 100, nil)
	assert.ErrorIs(t, f.Run(context.Background()), ErrNotInitialized)
}

func TestFinder_ReportsEachTargetOnce(t *testing.T) {
	dev := newFakeDevice(1)
	f := newTestFinder(t, dev, 1, 1000, nil)

	m1, a1 := matchFor(t, 7, true)
	m2, a2 := matchFor(t, 9, true)

	require.NoError(t, f.SetTargets([]string{a1, a2}))
	require.NoError(t, f.Init())

	// The same hash shows up twice in one batch and again later.
	dev.pending[2] = []Match{m1, m1}
	dev.pending[3] = []Match{m1}
	dev.pending[5] = []Match{m2}

	var results []Result
	f.SetResultCallback(func(r Result) { results = append(results, r) })

	require.NoError(t, f.Run(context.Background()))

	require.Len(t, results, 2)
	assert.Equal(t, a1, results[0].Address)
	assert.Equal(t, uint64(7), results[0].PrivateKey.Uint64())
	assert.True(t, results[0].Compressed)
	assert.Equal(t, a2, results[1].Address)

	assert.False(t, f.Contains(m1.Hash))
	assert.False(t, f.Contains(m2.Hash))
	assert.Equal(t, Stopped, f.State())
	assert.Equal(t, 5, dev.steps)
}

func TestFinder_PrunesDeviceTargets(t *testing.T) {
	dev := newFakeDevice(1)
	f := newTestFinder(t, dev, 1, 1000, nil)

	m1, a1 := matchFor(t, 3, true)
	_, a2 := matchFor(t, 4, true)
	require.NoError(t, f.SetTargets([]string{a1, a2}))
	require.NoError(t, f.Init())

	dev.pending[1] = []Match{m1}
	dev.afterStep = func(step int) {
		if step == 2 {
			f.Stop()
		}
	}

	require.NoError(t, f.Run(context.Background()))

	assert.Equal(t, 1, f.Targets())
	require.Len(t, dev.targets, 1)
	assert.NotEqual(t, m1.Hash, dev.targets[0])
	assert.Equal(t, 2, dev.setTargetsCalls)
}

func TestFinder_ExhaustionWithoutContinuation(t *testing.T) {
	dev := newFakeDevice(3)
	f := newTestFinder(t, dev, 1, 10, nil)

	_, a := matchFor(t, 500, true)
	require.NoError(t, f.SetTargets([]string{a}))
	require.NoError(t, f.Init())

	require.NoError(t, f.Run(context.Background()))

	assert.Equal(t, Exhausted, f.State())
	assert.Equal(t, uint64(10), f.NextKey().Uint64())
	assert.Equal(t, 3, dev.steps)
	assert.Equal(t, 1, f.Targets())
}

func TestFinder_ContinueWithoutRandomStrideStillTerminates(t *testing.T) {
	dev := newFakeDevice(4)
	f := newTestFinder(t, dev, 1, 10, func(c *Config) { c.ContinueAfterEnd = true })

	_, a := matchFor(t, 500, true)
	require.NoError(t, f.SetTargets([]string{a}))
	require.NoError(t, f.Init())

	require.NoError(t, f.Run(context.Background()))

	assert.Equal(t, Exhausted, f.State())
	assert.Empty(t, dev.updates)
	assert.Zero(t, f.Restrides())
}

// strideBytes builds random input whose draws with 8-bit strides yield values.
func strideBytes(values ...byte) *bytes.Reader {
	buf := make([]byte, 0, 32*len(values))
	for _, v := range values {
		block := make([]byte, 32)
		block[0] = v
		buf = append(buf, block...)
	}
	return bytes.NewReader(buf)
}

func TestFinder_ContinueWithRandomStrideReseeds(t *testing.T) {
	dev := newFakeDevice(1)
	f := newTestFinder(t, dev, 1, 10, func(c *Config) {
		c.RandomStride = true
		c.RandomStrideBits = 8
		c.ContinueAfterEnd = true
		c.Rand = strideBytes(5, 7)
	})
	assert.Equal(t, uint64(5), f.Stride().Uint64())

	_, a := matchFor(t, 500, true)
	require.NoError(t, f.SetTargets([]string{a}))
	require.NoError(t, f.Init())

	dev.afterReset = f.Stop

	require.NoError(t, f.Run(context.Background()))

	// 1 -> 6 -> 11: exhausted on the second step, restrided once, then stopped.
	assert.Equal(t, 2, dev.steps)
	assert.Equal(t, uint64(1), f.Restrides())
	require.Len(t, dev.updates, 1)
	assert.Equal(t, uint64(7), dev.updates[0].Uint64())
	assert.Equal(t, uint64(7), f.Stride().Uint64())
	assert.Equal(t, Stopped, f.State())
}

func TestFinder_ContinueKeepsRunningAcrossExhaustions(t *testing.T) {
	dev := newFakeDevice(1)
	f := newTestFinder(t, dev, 1, 4, func(c *Config) {
		c.RandomStride = true
		c.RandomStrideBits = 8
		c.ContinueAfterEnd = true
		c.Rand = strideBytes(10, 20, 30, 40)
	})

	_, a := matchFor(t, 500, true)
	require.NoError(t, f.SetTargets([]string{a}))
	require.NoError(t, f.Init())

	dev.afterStep = func(step int) {
		if step == 3 {
			f.Stop()
		}
	}

	require.NoError(t, f.Run(context.Background()))

	// Every step jumps past the end; each one restrides and the run carries on.
	assert.Equal(t, 3, dev.steps)
	assert.Equal(t, uint64(3), f.Restrides())
	assert.Equal(t, Stopped, f.State())
}

func TestFinder_StrideSpaceExhaustedEndsRun(t *testing.T) {
	dev := newFakeDevice(1)
	f := newTestFinder(t, dev, 1, 2, func(c *Config) {
		c.RandomStride = true
		c.RandomStrideBits = 1
		c.ContinueAfterEnd = true
	})

	_, a := matchFor(t, 500, true)
	require.NoError(t, f.SetTargets([]string{a}))
	require.NoError(t, f.Init())

	require.NoError(t, f.Run(context.Background()))
	assert.Equal(t, Exhausted, f.State())
}

func TestFinder_StatusSnapshots(t *testing.T) {
	dev := newFakeDevice(1000)
	clock := &fakeClock{t: time.Unix(0, 0), tick: 100 * time.Millisecond}
	f := newTestFinder(t, dev, 1, 1_000_000_000, func(c *Config) {
		c.StatusInterval = 250 * time.Millisecond
		c.Now = clock.Now
	})

	_, a := matchFor(t, 500, true)
	require.NoError(t, f.SetTargets([]string{a}))
	require.NoError(t, f.Init())

	var statuses []Status
	f.SetStatusCallback(func(s Status) {
		statuses = append(statuses, s)
		if len(statuses) == 5 {
			f.Stop()
		}
	})

	require.NoError(t, f.Run(context.Background()))
	require.Len(t, statuses, 5)

	var prev uint64
	for _, s := range statuses {
		assert.GreaterOrEqual(t, s.Total, prev)
		prev = s.Total
		assert.Equal(t, "fake", s.DeviceName)
		assert.Equal(t, 1, s.Targets)
		assert.Equal(t, uint64(512), s.FreeMemory)
		assert.Equal(t, uint64(1024), s.DeviceMemory)
		assert.Equal(t, uint64(1), s.Stride.Uint64())
		assert.Greater(t, s.Speed, 0.0)
	}

	// Three steps per 300ms snapshot: 3000 keys over 0.3s.
	assert.Equal(t, uint64(3000), statuses[0].Total)
	assert.InDelta(t, 0.01, statuses[0].Speed, 1e-9)
	assert.Equal(t, 300*time.Millisecond, statuses[0].TotalTime)
	assert.Equal(t, uint64(15000), statuses[4].Total)
}

func TestFinder_DeviceFailuresAreFatal(t *testing.T) {
	boom := errors.New("boom")

	t.Run("step", func(t *testing.T) {
		dev := newFakeDevice(1)
		dev.stepErr = boom
		f := newTestFinder(t, dev, 1, 100, nil)
		_, a := matchFor(t, 500, true)
		require.NoError(t, f.SetTargets([]string{a}))
		require.NoError(t, f.Init())

		err := f.Run(context.Background())
		require.Error(t, err)
		assert.True(t, IsDeviceError(err))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, Stopped, f.State())
	})

	t.Run("memory", func(t *testing.T) {
		dev := newFakeDevice(1)
		dev.memErr = boom
		clock := &fakeClock{t: time.Unix(0, 0), tick: time.Second}
		f := newTestFinder(t, dev, 1, 100, func(c *Config) { c.Now = clock.Now })
		_, a := matchFor(t, 500, true)
		require.NoError(t, f.SetTargets([]string{a}))
		require.NoError(t, f.Init())

		err := f.Run(context.Background())
		assert.True(t, IsDeviceError(err))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, dev.steps)
	})
}

func TestFinder_StopBeforeRun(t *testing.T) {
	dev := newFakeDevice(1)
	f := newTestFinder(t, dev, 1, 100, nil)
	_, a := matchFor(t, 500, true)
	require.NoError(t, f.SetTargets([]string{a}))
	require.NoError(t, f.Init())

	f.Stop()
	require.NoError(t, f.Run(context.Background()))

	assert.Equal(t, Stopped, f.State())
	assert.Equal(t, 1, dev.steps)
}

func TestFinder_ContextCancel(t *testing.T) {
	dev := newFakeDevice(1)
	f := newTestFinder(t, dev, 1, 1_000_000, nil)
	_, a := matchFor(t, 500_000_000, true)
	require.NoError(t, f.SetTargets([]string{a}))
	require.NoError(t, f.Init())

	ctx, cancel := context.WithCancel(context.Background())
	dev.afterStep = func(step int) {
		if step == 4 {
			cancel()
		}
	}

	require.NoError(t, f.Run(ctx))
	assert.Equal(t, Stopped, f.State())
	assert.Equal(t, 4, dev.steps)
}

func TestFinder_StopFromAnotherGoroutine(t *testing.T) {
	dev := newFakeDevice(1)
	f := newTestFinder(t, dev, 1, ^uint64(0), nil)
	_, a := matchFor(t, 500, true)
	require.NoError(t, f.SetTargets([]string{a}))
	require.NoError(t, f.Init())

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	f.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not observe Stop")
	}
	assert.Equal(t, Stopped, f.State())
}
