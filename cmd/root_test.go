package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "control"} {
		assert.Truef(t, names[want], "rootCmd missing subcommand %q", want)
	}
}

func TestControlCommandRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range controlCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"pause", "resume", "retake", "abort", "proceed", "status"} {
		assert.Truef(t, names[want], "controlCmd missing subcommand %q", want)
	}
}

func TestNewClientDefaultsToDefaultSocket(t *testing.T) {
	savedSocket := socketPath
	socketPath = ""
	defer func() { socketPath = savedSocket }()

	client := newClient()
	assert.NotNil(t, client)
}
