// Package checkpoint persists search progress so an interrupted run can resume from
// its last reported cursor.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/Amr-9/KeyHunter/pkg/search"
)

// ErrFinished is returned by State.Keyspace when the recorded cursor already reached
// the end of its range.
var ErrFinished = errors.New("checkpointed range is already fully searched")

// State is the on-disk progress record. Keys are hex strings.
type State struct {
	RunID            string        `yaml:"run_id"`
	Device           string        `yaml:"device"`
	Start            string        `yaml:"start"`
	End              string        `yaml:"end"`
	Next             string        `yaml:"next"`
	Stride           string        `yaml:"stride"`
	Compression      string        `yaml:"compression"`
	RandomStrideBits uint          `yaml:"random_stride_bits,omitempty"`
	Restrides        uint64        `yaml:"restrides"`
	Total            uint64        `yaml:"total"`
	Elapsed          time.Duration `yaml:"elapsed"`
	Updated          time.Time     `yaml:"updated"`
}

// New builds a record from a status snapshot.
func New(runID string, ks search.Keyspace, mode search.CompressionMode, bits uint, st search.Status, now time.Time) *State {
	s := &State{
		RunID:            runID,
		Device:           st.DeviceName,
		Start:            ks.Start.Hex(),
		End:              ks.End.Hex(),
		Compression:      mode.String(),
		RandomStrideBits: bits,
		Restrides:        st.Restrides,
		Total:            st.Total,
		Elapsed:          st.TotalTime,
		Updated:          now.UTC(),
	}
	if st.NextKey != nil {
		s.Next = st.NextKey.Hex()
	}
	if st.Stride != nil {
		s.Stride = st.Stride.Hex()
	}
	return s
}

// Keyspace returns the range still to search, [next, end).
func (s *State) Keyspace() (search.Keyspace, error) {
	next, err := parse("next", s.Next)
	if err != nil {
		return search.Keyspace{}, err
	}
	end, err := parse("end", s.End)
	if err != nil {
		return search.Keyspace{}, err
	}
	if !next.Lt(end) {
		return search.Keyspace{}, &search.ConfigError{
			Msg: fmt.Sprintf("next key %s reached end %s", next.Hex(), end.Hex()),
			Err: ErrFinished,
		}
	}
	ks := search.Keyspace{Start: next, End: end}
	if err := ks.Validate(); err != nil {
		return search.Keyspace{}, err
	}
	return ks, nil
}

// StrideValue returns the stride that was active when the record was written.
func (s *State) StrideValue() (*uint256.Int, error) {
	return parse("stride", s.Stride)
}

func parse(field, v string) (*uint256.Int, error) {
	k, err := search.ParseKey(v)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", field, err)
	}
	return k, nil
}

// Save writes the record to path through a temporary file and a rename, so a crash
// never leaves a truncated checkpoint behind.
func Save(path string, s *State) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Load reads a record written by Save.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", path, err)
	}
	return &s, nil
}

// PathFor returns the checkpoint path for one device of a multi-device run.
func PathFor(path string, deviceID, devices int) string {
	if devices <= 1 {
		return path
	}
	return fmt.Sprintf("%s.%d", path, deviceID)
}
