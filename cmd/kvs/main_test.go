package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// chdirToTempStore points the process at a fresh directory for the
// duration of the test, since openStore always uses the current
// working directory.
func chdirToTempStore(t *testing.T) {
	t.Helper()
	dir := t.TempDir()

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	return ee.code
}

func TestSetThenGetRoundTrips(t *testing.T) {
	chdirToTempStore(t)

	_, _, err := runCmd(t, "set", "k", "v")
	require.NoError(t, err)
	require.Equal(t, 0, exitCode(t, err))

	stdout, _, err := runCmd(t, "get", "k")
	require.NoError(t, err)
	require.Equal(t, 0, exitCode(t, err))
	require.Equal(t, "v\n", stdout)
}

func TestGetMissingKeyPrintsMessageAndExitsZero(t *testing.T) {
	chdirToTempStore(t)

	stdout, _, err := runCmd(t, "get", "missing")
	require.NoError(t, err)
	require.Equal(t, 0, exitCode(t, err))
	require.Equal(t, "Key not found\n", stdout)
}

func TestRmFoundKeyExitsZero(t *testing.T) {
	chdirToTempStore(t)

	_, _, err := runCmd(t, "set", "k", "v")
	require.NoError(t, err)

	_, _, err = runCmd(t, "rm", "k")
	require.NoError(t, err)
	require.Equal(t, 0, exitCode(t, err))

	stdout, _, err := runCmd(t, "get", "k")
	require.NoError(t, err)
	require.Equal(t, "Key not found\n", stdout)
}

func TestRmMissingKeyPrintsMessageAndExitsOne(t *testing.T) {
	chdirToTempStore(t)

	stdout, _, err := runCmd(t, "rm", "missing")
	require.Error(t, err)
	require.Equal(t, 1, exitCode(t, err))
	require.Equal(t, "Key not found\n", stdout)
}

func TestBareInvocationPrintsErrorToStderrAndExitsOne(t *testing.T) {
	chdirToTempStore(t)

	stdout, stderr, err := runCmd(t)
	require.Error(t, err)
	require.Equal(t, 1, exitCode(t, err))
	require.Equal(t, "Invalid argument\n", stderr)
	require.Empty(t, stdout)
}

func TestUnknownSubcommandPrintsErrorToStderrAndExitsOne(t *testing.T) {
	chdirToTempStore(t)

	_, stderr, err := runCmd(t, "bogus")
	require.Error(t, err)
	require.Equal(t, 1, exitCode(t, err))
	require.Equal(t, "Invalid argument\n", stderr)
}

func TestSetUsesWorkingDirectoryAsStoreDirectory(t *testing.T) {
	chdirToTempStore(t)

	_, _, err := runCmd(t, "set", "k", "v")
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	entries, err := os.ReadDir(cwd)
	require.NoError(t, err)
	require.NotEmpty(t, entries, "store should have written segment files into the working directory")

	var sawLog bool
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".log" {
			sawLog = true
		}
	}
	require.True(t, sawLog)
}
