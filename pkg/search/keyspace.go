package search

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
)

// CurveOrder is the order n of the secp256k1 group. Keys are valid in [1, n).
var CurveOrder = uint256.MustFromHex("0xfffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")

// Keyspace is the half-open range [Start, End) of private keys to search.
type Keyspace struct {
	Start *uint256.Int
	End   *uint256.Int
}

// DefaultKeyspace covers every valid private key.
func DefaultKeyspace() Keyspace {
	return Keyspace{Start: uint256.NewInt(1), End: CurveOrder.Clone()}
}

// String renders the keyspace as START:END in hex.
func (k Keyspace) String() string {
	return k.Start.Hex() + ":" + k.End.Hex()
}

// Size returns End - Start.
func (k Keyspace) Size() *uint256.Int {
	return new(uint256.Int).Sub(k.End, k.Start)
}

// Contains reports whether key lies in [Start, End).
func (k Keyspace) Contains(key *uint256.Int) bool {
	return !key.Lt(k.Start) && key.Lt(k.End)
}

// Exhausted reports whether the cursor has left the keyspace: either past the end,
// or below the start after wrapping around 2^256.
func (k Keyspace) Exhausted(current *uint256.Int) bool {
	return !current.Lt(k.End) || current.Lt(k.Start)
}

// Validate checks 1 <= Start < End.
func (k Keyspace) Validate() error {
	if k.Start == nil || k.End == nil {
		return &ConfigError{Msg: "keyspace start and end are required"}
	}
	if k.Start.IsZero() {
		return &ConfigError{Msg: "keyspace start must be at least 1"}
	}
	if !k.Start.Lt(k.End) {
		return &ConfigError{Msg: fmt.Sprintf("keyspace start %s is not below end %s", k.Start.Hex(), k.End.Hex())}
	}
	return nil
}

// Split divides the keyspace into n contiguous parts of equal size; the last part
// absorbs the remainder.
func (k Keyspace) Split(n int) ([]Keyspace, error) {
	if n < 1 {
		return nil, &ConfigError{Msg: fmt.Sprintf("cannot split keyspace into %d parts", n)}
	}

	size := k.Size()
	parts := uint256.NewInt(uint64(n))
	if size.Lt(parts) {
		return nil, &ConfigError{Msg: fmt.Sprintf("keyspace %s is smaller than %d parts", k, n)}
	}
	chunk := new(uint256.Int).Div(size, parts)

	out := make([]Keyspace, n)
	start := k.Start.Clone()
	for i := 0; i < n; i++ {
		end := new(uint256.Int).Add(start, chunk)
		if i == n-1 {
			end = k.End.Clone()
		}
		out[i] = Keyspace{Start: start, End: end}
		start = end.Clone()
	}
	return out, nil
}

// Share returns the m-th (1-based) of n parts, as selected by --share M/N.
func (k Keyspace) Share(m, n int) (Keyspace, error) {
	if m < 1 || m > n {
		return Keyspace{}, &ConfigError{Msg: fmt.Sprintf("invalid share %d/%d", m, n)}
	}
	parts, err := k.Split(n)
	if err != nil {
		return Keyspace{}, err
	}
	return parts[m-1], nil
}

// ParseShare parses "M/N".
func ParseShare(s string) (m, n int, err error) {
	if _, err := fmt.Sscanf(s, "%d/%d", &m, &n); err != nil {
		return 0, 0, &ConfigError{Msg: fmt.Sprintf("invalid share '%s'", s), Err: err}
	}
	if n < 1 || m < 1 || m > n {
		return 0, 0, &ConfigError{Msg: fmt.Sprintf("invalid share '%s'", s)}
	}
	return m, n, nil
}

// ParseKey parses a hexadecimal key or stride, with or without a 0x prefix.
func ParseKey(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return nil, &ConfigError{Msg: fmt.Sprintf("invalid key '%s'", s)}
	}

	b, ok := math.ParseBig256("0x" + digits)
	if !ok {
		return nil, &ConfigError{Msg: fmt.Sprintf("invalid key '%s'", s)}
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, &ConfigError{Msg: fmt.Sprintf("key '%s' exceeds 256 bits", s)}
	}
	return v, nil
}

// ParseKeyspace parses START:END, START:+COUNT, START or :END. A missing start means
// 1 and a missing end means the curve order.
func ParseKeyspace(s string) (Keyspace, error) {
	ks := DefaultKeyspace()
	s = strings.TrimSpace(s)
	if s == "" {
		return ks, nil
	}

	startStr, endStr, hasEnd := strings.Cut(s, ":")

	if startStr != "" {
		start, err := ParseKey(startStr)
		if err != nil {
			return Keyspace{}, err
		}
		ks.Start = start
	}

	if hasEnd {
		switch {
		case strings.HasPrefix(endStr, "+"):
			count, err := ParseKey(endStr[1:])
			if err != nil {
				return Keyspace{}, err
			}
			end, overflow := new(uint256.Int).AddOverflow(ks.Start, count)
			if overflow {
				return Keyspace{}, &ConfigError{Msg: fmt.Sprintf("keyspace '%s' overflows 256 bits", s)}
			}
			ks.End = end
		case endStr != "":
			end, err := ParseKey(endStr)
			if err != nil {
				return Keyspace{}, err
			}
			ks.End = end
		}
	}

	if err := ks.Validate(); err != nil {
		return Keyspace{}, err
	}
	return ks, nil
}
