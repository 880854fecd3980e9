//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	defer func() { Version, GitCommit = oldVersion, oldCommit }()
	Version, GitCommit = "1.2.3", "abcdef"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "accessctl 1.2.3")
	assert.Contains(t, out.String(), "commit abcdef")
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"migrate"}, {"status"}, {"seed"}, {"sweep"}, {"rebuild-cache"},
		{"confirm-payment"}, {"coupon", "create"}, {"user", "create"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestConfirmPaymentRejectsUnknownStatus(t *testing.T) {
	defer func() { confirmStatus = "paid" }()
	rootCmd.SetArgs([]string{"confirm-payment", "01J9", "--status", "refunded"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--status")
}

func TestParseOptionalTime(t *testing.T) {
	got, err := parseOptionalTime("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseOptionalTime("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseOptionalTime("2025-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Hour())

	_, err = parseOptionalTime("next tuesday")
	assert.Error(t, err)
}
