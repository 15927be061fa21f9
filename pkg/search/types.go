// Package search implements the key search orchestration engine: the run loop that
// steps a compute device through a keyspace, the set of target hashes still being
// searched for, keyspace partitioning and (optionally randomised) stride selection,
// and the status/result reporting protocol.
//
// Elliptic-curve arithmetic and the parallel evaluation of a batch of keys belong to
// the Device implementation; the orchestrator only drives it through the Device
// contract.
package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"

	"github.com/Amr-9/KeyHunter/pkg/address"
)

// CompressionMode selects which public key serialisations are hashed.
type CompressionMode int

const (
	Compressed   CompressionMode = iota // 33-byte public keys (02/03 prefix)
	Uncompressed                        // 65-byte public keys (04 prefix)
	Both                                // both forms for every key
)

// String returns the mode name as accepted by ParseCompressionMode.
func (m CompressionMode) String() string {
	switch m {
	case Compressed:
		return "compressed"
	case Uncompressed:
		return "uncompressed"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// ParseCompressionMode parses "compressed", "uncompressed" or "both".
func ParseCompressionMode(s string) (CompressionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compressed", "c":
		return Compressed, nil
	case "uncompressed", "u":
		return Uncompressed, nil
	case "both", "b":
		return Both, nil
	}
	return 0, &ConfigError{Msg: fmt.Sprintf("invalid compression mode '%s'", s)}
}

// Match is a hit reported by a device: a private key whose public key hashes to one
// of the targets installed on the device.
type Match struct {
	PrivateKey *uint256.Int
	PublicKey  *btcec.PublicKey
	Compressed bool
	Hash       address.Hash160
}

// Result is handed to the result callback exactly once per matched target.
type Result struct {
	PrivateKey *uint256.Int
	PublicKey  *btcec.PublicKey
	Compressed bool
	Address    string
}

// Status is a point-in-time snapshot of a running search.
type Status struct {
	Speed        float64       // Millions of keys per second over the last interval
	Total        uint64        // Keys examined since Run started
	TotalTime    time.Duration // Elapsed time since Run started
	DeviceName   string
	FreeMemory   uint64
	DeviceMemory uint64
	Targets      int          // Targets still being searched for
	NextKey      *uint256.Int // Device cursor
	Stride       *uint256.Int
	Restrides    uint64
}

// Device is the capability the orchestrator drives. Implementations are selected at
// construction time (CPU lanes, GPU kernels, test fakes).
//
// The orchestrator is the only caller while a run is active; implementations need not
// be safe for concurrent use.
type Device interface {
	// Init prepares the device to search from start with the given stride.
	Init(start *uint256.Int, mode CompressionMode, stride *uint256.Int) error

	// Step evaluates one batch of KeysPerStep keys and advances the cursor.
	// It blocks until the batch is complete.
	Step() error

	// Results drains the matches found since the previous call. The order of the
	// returned matches is unspecified.
	Results() ([]Match, error)

	// SetTargets replaces the device-resident comparison set.
	SetTargets(targets []address.Hash160) error

	// NextKey returns the first key of the next batch.
	NextKey() *uint256.Int

	// UpdateStride adopts a new stride and restarts the traversal from the key
	// passed to Init.
	UpdateStride(stride *uint256.Int) error

	// MemoryInfo reports free and total device memory in bytes.
	MemoryInfo() (free, total uint64, err error)

	Name() string
	KeysPerStep() uint64
}
