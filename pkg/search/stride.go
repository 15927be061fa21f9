package search

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/holiman/uint256"
)

// StrideManager owns the active stride. In random mode every stride is drawn from
// [1, 2^bits) and no value is drawn twice during the manager's lifetime.
type StrideManager struct {
	stride    *uint256.Int
	random    bool
	bits      uint
	history   map[[32]byte]struct{}
	restrides uint64
	rand      io.Reader
}

// NewFixedStride returns a manager that always uses stride.
func NewFixedStride(stride *uint256.Int) (*StrideManager, error) {
	if stride == nil || stride.IsZero() {
		return nil, &ConfigError{Msg: "stride must be greater than zero"}
	}
	return &StrideManager{stride: stride.Clone()}, nil
}

// NewRandomStride returns a manager drawing strides of at most bits bits from r
// (crypto/rand when r is nil). The initial stride is drawn immediately.
func NewRandomStride(bits uint, r io.Reader) (*StrideManager, error) {
	if bits < 1 || bits > 256 {
		return nil, &ConfigError{Msg: fmt.Sprintf("random stride bits must be in [1, 256], got %d", bits)}
	}
	if r == nil {
		r = rand.Reader
	}

	m := &StrideManager{
		random:  true,
		bits:    bits,
		history: make(map[[32]byte]struct{}),
		rand:    r,
	}

	stride, err := m.draw()
	if err != nil {
		return nil, err
	}
	m.stride = stride
	return m, nil
}

// Stride returns a copy of the active stride.
func (m *StrideManager) Stride() *uint256.Int {
	return m.stride.Clone()
}

// Random reports whether strides are randomised.
func (m *StrideManager) Random() bool {
	return m.random
}

// Restrides returns how many times Reseed replaced the stride.
func (m *StrideManager) Restrides() uint64 {
	return m.restrides
}

// Reseed draws a fresh, never used stride and makes it active.
func (m *StrideManager) Reseed() (*uint256.Int, error) {
	if !m.random {
		return nil, &ConfigError{Msg: "reseed requires random stride mode"}
	}

	stride, err := m.draw()
	if err != nil {
		return nil, err
	}
	m.stride = stride
	m.restrides++
	return stride.Clone(), nil
}

// draw picks a value uniformly from [1, 2^bits) that is not in the history.
func (m *StrideManager) draw() (*uint256.Int, error) {
	if m.spaceExhausted() {
		return nil, ErrStrideSpace
	}

	var buf [32]byte
	for {
		if _, err := io.ReadFull(m.rand, buf[:]); err != nil {
			return nil, fmt.Errorf("read random stride: %w", err)
		}

		v := new(uint256.Int).SetBytes32(buf[:])
		v.Rsh(v, 256-m.bits)
		if v.IsZero() {
			continue
		}

		key := v.Bytes32()
		if _, seen := m.history[key]; seen {
			continue
		}
		m.history[key] = struct{}{}
		return v, nil
	}
}

// spaceExhausted reports whether all 2^bits-1 non-zero values were drawn.
func (m *StrideManager) spaceExhausted() bool {
	if m.bits >= 63 {
		return false
	}
	return uint64(len(m.history)) >= (uint64(1)<<m.bits)-1
}
