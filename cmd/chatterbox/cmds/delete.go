package cmds

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAppFromCommand(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			id := args[0]
			c := a.newController()

			// deleting the active conversation would start a fresh one, so move
			// away from it while there is somewhere to go
			if st := c.State(); st.ActiveID == id {
				for _, other := range c.List() {
					if other.ID != id {
						c.SwitchTo(other.ID)
						break
					}
				}
			}

			if !c.RequestDeletion(id) {
				return errors.Errorf("unknown conversation %s", id)
			}
			if err := c.ConfirmDeletion(cmd.Context()); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			return nil
		},
	}
}
