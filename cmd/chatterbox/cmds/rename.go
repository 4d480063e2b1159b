package cmds

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>...",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAppFromCommand(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			id := args[0]
			if _, err := a.mustGet(id); err != nil {
				return err
			}
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return errors.New("title must not be blank")
			}

			c := a.newController()
			if err := c.Rename(cmd.Context(), id, title); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", id, title)
			return nil
		},
	}
}
