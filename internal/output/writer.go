// Package output appends found keys to the results file.
package output

import (
	"fmt"
	"os"
	"sync"

	"github.com/Amr-9/KeyHunter/pkg/address"
	"github.com/Amr-9/KeyHunter/pkg/search"
)

// Writer appends one line per result:
//
//	ADDRESS PRIVATE_KEY_HEX PUBLIC_KEY_HEX WIF
//
// It is safe for concurrent use by several finders. An address is written at most
// once per Writer.
type Writer struct {
	path string

	mu      sync.Mutex
	written map[string]struct{}
}

// NewWriter returns a writer appending to path. The file is created on first write.
func NewWriter(path string) *Writer {
	return &Writer{path: path, written: make(map[string]struct{})}
}

// Path returns the results file.
func (w *Writer) Path() string { return w.path }

// Line formats a result as written to the file.
func Line(r search.Result) (string, error) {
	key := r.PrivateKey.Bytes32()
	wif, err := address.PrivateKeyToWIF(key, r.Compressed)
	if err != nil {
		return "", fmt.Errorf("failed to encode WIF: %w", err)
	}

	pub := r.PublicKey.SerializeUncompressed()
	if r.Compressed {
		pub = r.PublicKey.SerializeCompressed()
	}
	return fmt.Sprintf("%s %x %x %s", r.Address, key[:], pub, wif), nil
}

// Write appends r unless its address was already written. It reports whether a line
// was added.
func (w *Writer) Write(r search.Result) (bool, error) {
	line, err := Line(r)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.written[r.Address]; ok {
		return false, nil
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", w.path, err)
	}

	w.written[r.Address] = struct{}{}
	return true, nil
}
