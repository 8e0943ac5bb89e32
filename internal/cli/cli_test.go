package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	var out bytes.Buffer
	parsed, err := Parse(nil, &out)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
	require.Contains(t, out.String(), "Usage:")
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/parley.yaml", "doctor"}, nil)
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/parley.yaml", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseConfigAfterCommand(t *testing.T) {
	parsed, err := Parse([]string{"run", "--config", "/tmp/parley.yaml"}, nil)
	require.NoError(t, err)
	require.Equal(t, CommandRun, parsed.Command)
	require.Equal(t, "/tmp/parley.yaml", parsed.ConfigPath)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
	}{
		{name: "help short flag", args: []string{"-h"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help long flag", args: []string{"--help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "version flag", args: []string{"--version"}, wantCmd: CommandVersion},
		{name: "run", args: []string{"run"}, wantCmd: CommandRun},
		{name: "press", args: []string{"press"}, wantCmd: CommandPress},
		{name: "release", args: []string{"release"}, wantCmd: CommandRelease},
		{name: "toggle", args: []string{"toggle"}, wantCmd: CommandToggle},
		{name: "status", args: []string{"status"}, wantCmd: CommandStatus},
		{name: "devices", args: []string{"devices"}, wantCmd: CommandDevices},
		{name: "version", args: []string{"version"}, wantCmd: CommandVersion},
		{name: "unknown command", args: []string{"explode"}, wantErr: "unknown command"},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: "unknown flag"},
		{name: "missing config value", args: []string{"--config"}, wantErr: "needs an argument"},
		{name: "extra args", args: []string{"press", "now"}, wantErr: "unknown command"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args, nil)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
		})
	}
}

func TestHelpTextListsCommands(t *testing.T) {
	help := HelpText("parley")
	require.Contains(t, help, "Usage:")
	for _, spec := range commands {
		require.Contains(t, help, string(spec.name))
	}
	require.Contains(t, help, "--config")
}
