// Package cli parses scribe command lines into a Parsed request.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbright/scribe/internal/segment"
)

type Command string

const (
	CommandRecord  Command = "record"
	CommandToggle  Command = "toggle"
	CommandPause   Command = "pause"
	CommandResume  Command = "resume"
	CommandStop    Command = "stop"
	CommandReset   Command = "reset"
	CommandStatus  Command = "status"
	CommandSpeaker Command = "speaker"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// Parsed is one resolved invocation.
type Parsed struct {
	Command     Command
	Arg         string
	ConfigPath  string
	SaveAudio   string
	NoClipboard bool
	JSON        bool
	ShowHelp    bool
}

// Parse resolves args (without the binary name). Any returned error is a usage
// error.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	root := newRoot(&parsed)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

func newRoot(parsed *Parsed) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:           "scribe",
		Short:         "Clinical visit voice capture",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(*cobra.Command, []string) error {
			if showVersion {
				parsed.Command = CommandVersion
				parsed.ShowHelp = false
			}
			return nil
		},
	}
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetHelpFunc(func(*cobra.Command, []string) {
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
	})

	root.PersistentFlags().StringVar(&parsed.ConfigPath, "config", "", "config file path")
	root.Flags().BoolVar(&showVersion, "version", false, "show version")

	record := leaf(parsed, CommandRecord, "Start a recording and wait for it to finish")
	toggle := leaf(parsed, CommandToggle, "Start recording, or stop the active recording")
	for _, cmd := range []*cobra.Command{record, toggle} {
		cmd.Flags().StringVar(&parsed.SaveAudio, "save-audio", "", "write the recorded audio to `PATH`")
		cmd.Flags().BoolVar(&parsed.NoClipboard, "no-clipboard", false, "do not copy the transcript to the clipboard")
	}

	status := leaf(parsed, CommandStatus, "Print the current session state")
	status.Flags().BoolVar(&parsed.JSON, "json", false, "print the full session snapshot as JSON")

	speaker := &cobra.Command{
		Use:   "speaker <doctor|patient|unknown>",
		Short: "Set the speaker label for new segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			label, err := segment.ParseSpeaker(args[0])
			if err != nil {
				return err
			}
			parsed.Command = CommandSpeaker
			parsed.Arg = string(label)
			parsed.ShowHelp = false
			return nil
		},
	}

	root.AddCommand(
		record,
		toggle,
		leaf(parsed, CommandPause, "Pause the active recording"),
		leaf(parsed, CommandResume, "Resume a paused recording"),
		leaf(parsed, CommandStop, "Stop the active recording and finalize the transcript"),
		leaf(parsed, CommandReset, "Discard the active recording"),
		status,
		speaker,
		leaf(parsed, CommandDevices, "List available input devices"),
		leaf(parsed, CommandDoctor, "Run configuration and environment checks"),
		leaf(parsed, CommandVersion, "Print version information"),
	)
	return root
}

// leaf builds an argument-less subcommand that records itself into parsed.
func leaf(parsed *Parsed, command Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(command),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			parsed.Command = command
			parsed.ShowHelp = false
			return nil
		},
	}
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  record    Start a recording and wait until it is stopped
  toggle    Start recording, or stop the active recording
  pause     Pause the active recording
  resume    Resume a paused recording
  stop      Stop the active recording and finalize the transcript
  reset     Discard the active recording
  status    Print current state (--json for the full snapshot)
  speaker   Set the speaker label: %[2]s
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH       Config file path (default: $XDG_CONFIG_HOME/scribe/config.jsonc)
  --save-audio PATH   record/toggle: write the recorded audio to PATH
  --no-clipboard      record/toggle: do not copy the transcript
  -h, --help          Show help
  --version           Show version
`, binaryName, strings.Join(speakerLabels(), "|"))
}

func speakerLabels() []string {
	return []string{string(segment.SpeakerDoctor), string(segment.SpeakerPatient), string(segment.SpeakerUnknown)}
}
