package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayCommandFlags(t *testing.T) {
	cmd := newPlayCmd()

	for _, name := range []string{"url", "log", "rollback-rejected", "dial-timeout"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, defaultURL, cmd.Flags().Lookup("url").DefValue)
}

func TestPlayWithoutServer(t *testing.T) {
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetIn(strings.NewReader("start\n/quit\n"))
	root.SetArgs([]string{
		"play",
		"--url", "ws://127.0.0.1:1/ws",
		"--log", filepath.Join(t.TempDir(), "client.log"),
	})

	require.NoError(t, root.ExecuteContext(context.Background()))
	s := out.String()
	assert.Contains(t, s, "Connection lost")
	assert.Contains(t, s, "Not connected")
	assert.Contains(t, s, "Bye.")
}
