// Package cli parses the parley command line into a command and its global
// options. Dispatch lives in app.
package cli

import (
	"bytes"
	"io"

	"github.com/spf13/cobra"
)

type Command string

const (
	CommandRun     Command = "run"
	CommandPress   Command = "press"
	CommandRelease Command = "release"
	CommandToggle  Command = "toggle"
	CommandStatus  Command = "status"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
}

type commandSpec struct {
	name  Command
	short string
}

var commands = []commandSpec{
	{CommandRun, "Run the relay daemon in the foreground"},
	{CommandPress, "Signal a push-to-talk key press"},
	{CommandRelease, "Signal a push-to-talk key release"},
	{CommandToggle, "Press when idle, release when recording"},
	{CommandStatus, "Print the daemon session state"},
	{CommandDevices, "List available input devices"},
	{CommandDoctor, "Run configuration and environment checks"},
	{CommandVersion, "Print version information"},
}

// newRoot builds the command tree. Every leaf records itself into parsed
// instead of doing work so that Parse stays free of side effects.
func newRoot(binaryName string, parsed *Parsed) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   binaryName,
		Short: "Push-to-talk speech relay: speak, translate, and re-voice into a virtual microphone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				parsed.Command = CommandVersion
				parsed.ShowHelp = false
				return nil
			}
			return cmd.Help()
		},
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	root.PersistentFlags().StringVar(&parsed.ConfigPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/parley/config.yaml)")
	root.Flags().BoolVar(&showVersion, "version", false, "show version")

	for _, spec := range commands {
		name := spec.name
		root.AddCommand(&cobra.Command{
			Use:   string(name),
			Short: spec.short,
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				parsed.Command = name
				parsed.ShowHelp = false
				return nil
			},
		})
	}
	return root
}

// Parse resolves args into a command. Help output requested with -h or
// --help is written to out; with no command Parse reports CommandHelp.
func Parse(args []string, out io.Writer) (Parsed, error) {
	if out == nil {
		out = io.Discard
	}
	if args == nil {
		// cobra falls back to os.Args on a nil slice.
		args = []string{}
	}
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	root := newRoot("parley", &parsed)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(io.Discard)
	if err := root.Execute(); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

// HelpText renders the top-level usage for binaryName.
func HelpText(binaryName string) string {
	var parsed Parsed
	root := newRoot(binaryName, &parsed)
	var buf bytes.Buffer
	root.SetOut(&buf)
	_ = root.Help()
	return buf.String()
}
