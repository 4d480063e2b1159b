package cmds

import (
	"context"

	"github.com/go-go-golems/chatterbox/pkg/logging"
	"github.com/go-go-golems/chatterbox/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type settingsKey struct{}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "chatterbox",
		Short:        "chatterbox is a terminal chat client that keeps its conversations",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			// the TUI owns the terminal, only a log file gets output
			if cmd.Name() == "chat" {
				s.Log.Quiet = true
			}
			if err := logging.InitLogger(&s.Log); err != nil {
				return err
			}

			log.Debug().Str("command", cmd.Name()).Str("store", string(s.Store.Backend)).Msg("Loaded configuration")
			cmd.SetContext(context.WithValue(cmd.Context(), settingsKey{}, s))
			return nil
		},
	}

	settings.AddPersistentFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		NewChatCommand(),
		NewSendCommand(),
		NewShowCommand(),
		NewRenameCommand(),
		NewDeleteCommand(),
		NewExportCommand(),
		NewImportCommand(),
		NewSchemaCommand(),
		NewServeCommand(),
	)
	cobra.CheckErr(addGlazeCommands(rootCmd))

	return rootCmd
}

// loadSettings merges defaults, config file, environment and the flags of cmd.
func loadSettings(cmd *cobra.Command) (*settings.Settings, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	v, err := settings.NewViper(configFile)
	if err != nil {
		return nil, err
	}
	if err := settings.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return settings.Load(v)
}

func getSettings(cmd *cobra.Command) (*settings.Settings, error) {
	return settingsFromContext(cmd.Context())
}

func settingsFromContext(ctx context.Context) (*settings.Settings, error) {
	s, ok := ctx.Value(settingsKey{}).(*settings.Settings)
	if !ok {
		return nil, errors.New("settings were not loaded")
	}
	return s, nil
}

// addGlazeCommands registers the commands that emit rows through a glazed
// processor. Their output format is picked with --output, --fields and friends.
func addGlazeCommands(rootCmd *cobra.Command) error {
	listCommand, err := NewListCommand()
	if err != nil {
		return err
	}
	messagesCommand, err := NewMessagesCommand()
	if err != nil {
		return err
	}

	for _, c := range []cmds.GlazeCommand{listCommand, messagesCommand} {
		cobraCommand, err := cli.BuildCobraCommandFromGlazeCommand(c)
		if err != nil {
			return err
		}
		rootCmd.AddCommand(cobraCommand)
	}
	return nil
}
