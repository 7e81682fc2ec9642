package main

import (
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMainExitsWithoutProperties(t *testing.T) {
	if os.Getenv("KAFKAPORT_RUN_MAIN") == "1" {
		os.Args = []string{"kafka-admin-port"}
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestMainExitsWithoutProperties$")
	cmd.Env = append(os.Environ(), "KAFKAPORT_RUN_MAIN=1")
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "expected a non-zero exit, got %v", err)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, string(out), "startup properties are required")
}
