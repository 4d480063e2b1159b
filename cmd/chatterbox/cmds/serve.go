package cmds

import (
	"github.com/go-go-golems/chatterbox/pkg/server"
	"github.com/go-go-golems/chatterbox/pkg/settings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getSettings(cmd)
			if err != nil {
				return err
			}

			var completer server.Completer
			if s.Server.OpenAIAPIKey != "" {
				completer = server.NewOpenAICompleter(s.Server.OpenAIAPIKey, s.Server.OpenAIBaseURL, s.Server.Model)
			} else {
				log.Warn().Msg("No OpenAI API key configured, completion requests will fail")
			}

			srv := server.NewServer(completer, server.WithAllowedOrigins(s.Server.AllowedOrigins...))
			return srv.Run(cmd.Context(), s.Server.Addr)
		},
	}

	settings.AddServerFlags(cmd.Flags())

	return cmd
}
