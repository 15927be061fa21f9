package main

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/Amr-9/KeyHunter/pkg/address"
	"github.com/Amr-9/KeyHunter/pkg/device"
	"github.com/Amr-9/KeyHunter/pkg/search"
)

// verifyResult compares one key as derived by the device and by btcec.
type verifyResult struct {
	Key      *uint256.Int
	Expected string
	Found    string
	Match    bool
}

func newVerifyCmd() *cobra.Command {
	var (
		id     int
		points int
		steps  int
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a device's key derivation against the reference implementation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(cmd.ErrOrStderr(), "warn")
			if err != nil {
				return err
			}
			dev, err := newManager(log).Open(id, device.Options{Points: points})
			if err != nil {
				return err
			}

			start, stride, err := randomLattice(rand.Reader)
			if err != nil {
				return err
			}
			results, err := verifyDevice(dev, start, stride, steps)
			if err != nil {
				return err
			}
			if !printVerify(cmd.OutOrStdout(), dev.Name(), results) {
				return fmt.Errorf("%s: derivation mismatch", dev.Name())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&id, "device", "d", 0, "device id to verify")
	cmd.Flags().IntVar(&points, "points", 256, "keys per step")
	cmd.Flags().IntVar(&steps, "steps", 4, "steps to run")
	return cmd
}

// randomLattice draws a 128-bit start key and a 32-bit stride.
func randomLattice(r io.Reader) (start, stride *uint256.Int, err error) {
	var buf [20]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, nil, err
	}
	start = new(uint256.Int).SetBytes(buf[:16])
	stride = new(uint256.Int).SetBytes(buf[16:])
	if start.IsZero() {
		start.SetOne()
	}
	if stride.IsZero() {
		stride.SetOne()
	}
	return start, stride, nil
}

// verifyDevice runs the device over start, start+s, ... for the given number of steps
// and checks that the first and last key of every step, in both serialisations, is
// reported with the address btcec derives for it.
func verifyDevice(dev search.Device, start, stride *uint256.Int, steps int) ([]verifyResult, error) {
	perStep := new(uint256.Int).Mul(stride, uint256.NewInt(dev.KeysPerStep()))
	lastLane := new(uint256.Int).Mul(stride, uint256.NewInt(dev.KeysPerStep()-1))

	type sample struct {
		key        *uint256.Int
		compressed bool
		hash       address.Hash160
	}
	var samples []sample
	cur := start.Clone()
	for i := 0; i < steps; i++ {
		for j, k := range []*uint256.Int{cur.Clone(), new(uint256.Int).Add(cur, lastLane)} {
			b := k.Bytes32()
			_, pub := btcec.PrivKeyFromBytes(b[:])
			compressed := j == 0
			samples = append(samples, sample{key: k, compressed: compressed, hash: address.HashPublicKey(pub, compressed)})
		}
		cur.Add(cur, perStep)
	}

	hashes := make([]address.Hash160, len(samples))
	for i, s := range samples {
		hashes[i] = s.hash
	}
	if err := dev.SetTargets(hashes); err != nil {
		return nil, err
	}
	if err := dev.Init(start, search.Both, stride); err != nil {
		return nil, err
	}

	found := make(map[address.Hash160]search.Match)
	for i := 0; i < steps; i++ {
		if err := dev.Step(); err != nil {
			return nil, err
		}
		matches, err := dev.Results()
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			found[m.Hash] = m
		}
	}

	results := make([]verifyResult, len(samples))
	for i, s := range samples {
		r := verifyResult{Key: s.key, Expected: address.FromHash160(s.hash)}
		if m, ok := found[s.hash]; ok {
			r.Found = address.FromPublicKey(m.PublicKey, m.Compressed)
			r.Match = m.PrivateKey.Eq(s.key) && m.Compressed == s.compressed && r.Found == r.Expected
		}
		results[i] = r
	}
	return results, nil
}

// printVerify reports each comparison and returns whether all of them matched.
func printVerify(w io.Writer, name string, results []verifyResult) bool {
	fmt.Fprintf(w, "Verifying %s\n\n", name)
	passed := true
	for i, r := range results {
		status := "MATCH"
		if !r.Match {
			status = "MISMATCH"
			passed = false
		}
		fmt.Fprintf(w, "  Test %d: key %s\n", i+1, r.Key.Hex())
		fmt.Fprintf(w, "    expected %s\n", r.Expected)
		fmt.Fprintf(w, "    device   %s\n", r.Found)
		fmt.Fprintf(w, "    %s\n", status)
	}
	fmt.Fprintln(w)
	if passed {
		fmt.Fprintln(w, "All tests passed.")
	} else {
		fmt.Fprintln(w, "Some tests failed.")
	}
	return passed
}
