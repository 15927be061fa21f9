package search

import (
	"bufio"
	"os"
	"sort"
	"strings"

	"github.com/Amr-9/KeyHunter/pkg/address"
)

// TargetSet holds the hashes still being searched for.
type TargetSet struct {
	hashes map[address.Hash160]struct{}
}

// NewTargetSet returns a set holding the given hashes; duplicates collapse.
func NewTargetSet(hashes ...address.Hash160) *TargetSet {
	s := &TargetSet{hashes: make(map[address.Hash160]struct{}, len(hashes))}
	for _, h := range hashes {
		s.hashes[h] = struct{}{}
	}
	return s
}

// Add inserts h.
func (s *TargetSet) Add(h address.Hash160) {
	s.hashes[h] = struct{}{}
}

// Contains reports whether h is still a target.
func (s *TargetSet) Contains(h address.Hash160) bool {
	_, ok := s.hashes[h]
	return ok
}

// Remove deletes h, returning whether it was present.
func (s *TargetSet) Remove(h address.Hash160) bool {
	if _, ok := s.hashes[h]; !ok {
		return false
	}
	delete(s.hashes, h)
	return true
}

// Len returns the number of targets.
func (s *TargetSet) Len() int {
	return len(s.hashes)
}

// Hashes returns the targets in ascending byte order.
func (s *TargetSet) Hashes() []address.Hash160 {
	out := make([]address.Hash160, 0, len(s.hashes))
	for h := range s.hashes {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// SizeBytes approximates the memory held by the set's hash values.
func (s *TargetSet) SizeBytes() int {
	return len(s.hashes) * len(address.Hash160{})
}

// ParseTargets validates every address and returns the resulting set. The first
// invalid address fails the whole load.
func ParseTargets(addrs []string) (*TargetSet, error) {
	if len(addrs) == 0 {
		return nil, &ConfigError{Err: ErrNoTargets}
	}

	set := NewTargetSet()
	for _, a := range addrs {
		h, err := address.Decode(a)
		if err != nil {
			return nil, &ConfigError{Err: &InvalidAddressError{Address: a, Err: err}}
		}
		set.Add(h)
	}
	return set, nil
}

// ReadTargetsFile reads one address per line, ignoring blank lines, and validates
// them the same way ParseTargets does.
func ReadTargetsFile(path string) (*TargetSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Msg: "unable to open '" + path + "'", Err: err}
	}
	defer file.Close()

	var addrs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		addrs = append(addrs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{Msg: "unable to read '" + path + "'", Err: err}
	}

	return ParseTargets(addrs)
}
