package cmds

import (
	"fmt"

	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/spf13/cobra"
)

func NewImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add conversations from a JSON or YAML export",
		Long: "Add conversations from a file written by export. Conversations whose id " +
			"is already stored are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conversations, err := conversation.LoadFromFile(args[0])
			if err != nil {
				return err
			}

			a, err := openAppFromCommand(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			added, err := a.store.Import(cmd.Context(), conversations)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d conversations\n", added, len(conversations))
			return nil
		},
	}
}
