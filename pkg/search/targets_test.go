package search

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amr-9/KeyHunter/pkg/address"
)

const (
	addrKey1 = "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"
	addrKey1U = "1EHNa6Q4Jz2uvNExL497mE43ikXhwF6kZm"
)

func TestTargetSet_Basics(t *testing.T) {
	a := address.Hash160{1}
	b := address.Hash160{2}

	s := NewTargetSet(b, a, a)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(a))
	assert.Equal(t, []address.Hash160{a, b}, s.Hashes())
	assert.Equal(t, 40, s.SizeBytes())

	assert.True(t, s.Remove(a))
	assert.False(t, s.Remove(a))
	assert.False(t, s.Contains(a))
	assert.Equal(t, 1, s.Len())
}

func TestParseTargets_DuplicatesCollapse(t *testing.T) {
	s, err := ParseTargets([]string{addrKey1, addrKey1U, addrKey1})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestParseTargets_Errors(t *testing.T) {
	_, err := ParseTargets(nil)
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = ParseTargets([]string{addrKey1, "bogus", "alsobogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'bogus'")
	assert.True(t, IsConfigError(err))
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadTargetsFile(t *testing.T) {
	path := writeFile(t, strings.Join([]string{
		"",
		"  " + addrKey1 + "  ",
		"\t",
		addrKey1U + "\r",
		addrKey1,
		"",
	}, "\n"))

	s, err := ReadTargetsFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestReadTargetsFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := ReadTargetsFile(filepath.Join(t.TempDir(), "nope.txt"))
		assert.True(t, IsConfigError(err))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid line", func(t *testing.T) {
		_, err := ReadTargetsFile(writeFile(t, addrKey1+"\nnot-an-address\n"))
		var invalid *InvalidAddressError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "not-an-address", invalid.Address)
	})

	t.Run("only blank lines", func(t *testing.T) {
		_, err := ReadTargetsFile(writeFile(t, "\n   \n"))
		assert.ErrorIs(t, err, ErrNoTargets)
	})
}
