package search_test

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amr-9/KeyHunter/pkg/address"
	"github.com/Amr-9/KeyHunter/pkg/device"
	"github.com/Amr-9/KeyHunter/pkg/device/cpu"
	"github.com/Amr-9/KeyHunter/pkg/search"
)

func cpuFinder(t *testing.T, start, end uint64, points int) (*search.Finder, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	dev := cpu.New(device.Options{Points: points, Workers: 2})
	f, err := search.New(dev, search.Config{
		Keyspace:    search.Keyspace{Start: uint256.NewInt(start), End: uint256.NewInt(end)},
		Compression: search.Compressed,
		Stride:      uint256.NewInt(1),
		Logger:      logger,
	})
	require.NoError(t, err)
	return f, hook
}

func TestFinder_CPUFindsKey(t *testing.T) {
	b := uint256.NewInt(42).Bytes32()
	_, pub := btcec.PrivKeyFromBytes(b[:])
	want := address.FromPublicKey(pub, true)

	f, _ := cpuFinder(t, 1, 100, 16)
	require.NoError(t, f.SetTargets([]string{want}))
	require.NoError(t, f.Init())

	var results []search.Result
	f.SetResultCallback(func(r search.Result) { results = append(results, r) })

	require.NoError(t, f.Run(context.Background()))
	assert.Equal(t, search.Stopped, f.State())
	assert.Zero(t, f.Targets())

	require.Len(t, results, 1)
	assert.Equal(t, uint64(42), results[0].PrivateKey.Uint64())
	assert.True(t, results[0].Compressed)
	assert.Equal(t, want, results[0].Address)
}

func TestFinder_CPUExhaustsWithoutMatch(t *testing.T) {
	f, hook := cpuFinder(t, 1, 10, 4)

	// Key 1, uncompressed; the finder only hashes compressed keys.
	require.NoError(t, f.SetTargets([]string{"1EHNa6Q4Jz2uvNExL497mE43ikXhwF6kZm"}))
	require.NoError(t, f.Init())

	var results []search.Result
	f.SetResultCallback(func(r search.Result) { results = append(results, r) })

	require.NoError(t, f.Run(context.Background()))
	assert.Equal(t, search.Exhausted, f.State())
	assert.Empty(t, results)
	assert.GreaterOrEqual(t, f.NextKey().Uint64(), uint64(10))
	assert.Equal(t, "Reached end of keyspace", hook.LastEntry().Message)
}
