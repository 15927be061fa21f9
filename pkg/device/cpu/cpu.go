// Package cpu implements the search device on the host processor. The device keeps a
// batch of lanes, each holding a private key and its public point, and walks them
// forward by point addition so no lane ever needs a full scalar multiplication after
// the traversal is set up.
package cpu

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"
	"github.com/willf/bloom"
	"golang.org/x/sync/errgroup"

	"github.com/Amr-9/KeyHunter/pkg/address"
	"github.com/Amr-9/KeyHunter/pkg/device"
	"github.com/Amr-9/KeyHunter/pkg/search"
)

const (
	// DefaultPoints is the number of lanes evaluated per step.
	DefaultPoints = 4096

	// bloomFalsePositive is the target prefilter error rate.
	bloomFalsePositive = 1e-6
)

var errNotInitialized = errors.New("device not initialized")

// Backend exposes the host CPU as a single device.
type Backend struct{}

// NewBackend returns the CPU backend.
func NewBackend() *Backend { return &Backend{} }

// Type returns device.CPU.
func (b *Backend) Type() device.Type { return device.CPU }

// Devices returns the host processor.
func (b *Backend) Devices() ([]device.Physical, error) {
	_, total, err := memoryInfo()
	if err != nil {
		return nil, err
	}
	return []device.Physical{{
		ID:           0,
		Name:         cpuName(),
		Memory:       total,
		ComputeUnits: runtime.NumCPU(),
	}}, nil
}

// Open returns a new CPU device. Only physical id 0 exists.
func (b *Backend) Open(physicalID int, opts device.Options) (search.Device, error) {
	if physicalID != 0 {
		return nil, fmt.Errorf("no CPU device with id %d", physicalID)
	}
	return New(opts), nil
}

func cpuName() string {
	return fmt.Sprintf("CPU (%s/%s, %d threads)", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
}

// lane is one key being walked by the device.
type lane struct {
	key   uint256.Int
	point btcec.JacobianPoint
}

// Device is a search.Device running on goroutines.
type Device struct {
	workers int
	points  int

	mode   search.CompressionMode
	start  *uint256.Int
	stride *uint256.Int
	cursor *uint256.Int

	// stepKey is points*stride; stepPoint is stepKey*G.
	stepKey   uint256.Int
	stepPoint btcec.JacobianPoint
	lanes     []lane

	// Targets are replaced only between steps.
	targets map[address.Hash160]struct{}
	filter  *bloom.BloomFilter

	mu      sync.Mutex
	results []search.Match
}

// New returns an uninitialized device. Zero options select NumCPU workers and
// DefaultPoints lanes.
func New(opts device.Options) *Device {
	d := &Device{
		workers: opts.Workers,
		points:  opts.Points,
	}
	if d.workers <= 0 {
		d.workers = runtime.NumCPU()
	}
	if d.points <= 0 {
		d.points = DefaultPoints
	}
	if d.workers > d.points {
		d.workers = d.points
	}
	return d
}

// Name implements search.Device.
func (d *Device) Name() string { return cpuName() }

// KeysPerStep implements search.Device.
func (d *Device) KeysPerStep() uint64 { return uint64(d.points) }

// Init implements search.Device.
func (d *Device) Init(start *uint256.Int, mode search.CompressionMode, stride *uint256.Int) error {
	if start == nil {
		return errors.New("start key is required")
	}
	if stride == nil || stride.IsZero() {
		return errors.New("stride must be non-zero")
	}
	d.mode = mode
	d.start = start.Clone()
	d.stride = stride.Clone()
	d.reset()
	return nil
}

// UpdateStride implements search.Device. The traversal restarts from the key given
// to Init.
func (d *Device) UpdateStride(stride *uint256.Int) error {
	if d.start == nil {
		return errNotInitialized
	}
	if stride == nil || stride.IsZero() {
		return errors.New("stride must be non-zero")
	}
	d.stride = stride.Clone()
	d.reset()
	return nil
}

// reset lays out the lanes start, start+s, ..., start+(P-1)s and precomputes the
// per-step increment.
func (d *Device) reset() {
	d.cursor = d.start.Clone()
	d.stepKey.Mul(d.stride, uint256.NewInt(uint64(d.points)))
	scalarBaseMult(&d.stepKey, &d.stepPoint)

	var stridePoint btcec.JacobianPoint
	scalarBaseMult(d.stride, &stridePoint)

	d.lanes = make([]lane, d.points)
	d.lanes[0].key.Set(d.start)
	scalarBaseMult(d.start, &d.lanes[0].point)
	for i := 1; i < d.points; i++ {
		prev, cur := &d.lanes[i-1], &d.lanes[i]
		if _, overflow := cur.key.AddOverflow(&prev.key, d.stride); overflow {
			scalarBaseMult(&cur.key, &cur.point)
			continue
		}
		btcec.AddNonConst(&prev.point, &stridePoint, &cur.point)
	}

	d.mu.Lock()
	d.results = nil
	d.mu.Unlock()
}

// scalarBaseMult sets result to (k mod n)*G.
func scalarBaseMult(k *uint256.Int, result *btcec.JacobianPoint) {
	var s btcec.ModNScalar
	b := k.Bytes32()
	s.SetBytes(&b)
	btcec.ScalarBaseMultNonConst(&s, result)
}

// Step implements search.Device.
func (d *Device) Step() error {
	if d.cursor == nil {
		return errNotInitialized
	}

	chunk := (len(d.lanes) + d.workers - 1) / d.workers
	var g errgroup.Group
	for lo := 0; lo < len(d.lanes); lo += chunk {
		hi := min(lo+chunk, len(d.lanes))
		lanes := d.lanes[lo:hi]
		g.Go(func() error {
			d.walk(lanes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	d.cursor.Add(d.cursor, &d.stepKey)
	return nil
}

// walk checks every lane against the targets and advances it by one step.
func (d *Device) walk(lanes []lane) {
	var (
		found []search.Match
		next  btcec.JacobianPoint
	)
	for i := range lanes {
		l := &lanes[i]
		if valid(&l.key) {
			found = d.check(l, found)
		}
		if _, overflow := l.key.AddOverflow(&l.key, &d.stepKey); overflow {
			scalarBaseMult(&l.key, &l.point)
			continue
		}
		btcec.AddNonConst(&l.point, &d.stepPoint, &next)
		l.point = next
	}

	if len(found) > 0 {
		d.mu.Lock()
		d.results = append(d.results, found...)
		d.mu.Unlock()
	}
}

// valid reports whether k is a usable private key, 0 < k < n.
func valid(k *uint256.Int) bool {
	return !k.IsZero() && k.Lt(search.CurveOrder)
}

func (d *Device) check(l *lane, found []search.Match) []search.Match {
	if d.filter == nil {
		return found
	}

	affine := l.point
	affine.ToAffine()
	pub := btcec.NewPublicKey(&affine.X, &affine.Y)

	if d.mode != search.Uncompressed {
		found = d.test(l, pub, true, found)
	}
	if d.mode != search.Compressed {
		found = d.test(l, pub, false, found)
	}
	return found
}

func (d *Device) test(l *lane, pub *btcec.PublicKey, compressed bool, found []search.Match) []search.Match {
	h := address.HashPublicKey(pub, compressed)
	if !d.filter.Test(h[:]) {
		return found
	}
	if _, ok := d.targets[h]; !ok {
		return found
	}
	return append(found, search.Match{
		PrivateKey: l.key.Clone(),
		PublicKey:  pub,
		Compressed: compressed,
		Hash:       h,
	})
}

// Results implements search.Device. Each match is returned once.
func (d *Device) Results() ([]search.Match, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.results
	d.results = nil
	return out, nil
}

// SetTargets implements search.Device.
func (d *Device) SetTargets(hashes []address.Hash160) error {
	targets := make(map[address.Hash160]struct{}, len(hashes))
	filter := bloom.NewWithEstimates(uint(max(len(hashes), 1)), bloomFalsePositive)
	for _, h := range hashes {
		targets[h] = struct{}{}
		filter.Add(h[:])
	}
	d.targets = targets
	d.filter = filter
	return nil
}

// NextKey implements search.Device.
func (d *Device) NextKey() *uint256.Int {
	if d.cursor == nil {
		return new(uint256.Int)
	}
	return d.cursor.Clone()
}

// MemoryInfo implements search.Device with the host's RAM figures.
func (d *Device) MemoryInfo() (free, total uint64, err error) {
	return memoryInfo()
}
