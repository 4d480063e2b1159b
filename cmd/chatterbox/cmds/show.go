package cmds

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewShowCommand() *cobra.Command {
	var render bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the transcript of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAppFromCommand(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			c, err := a.mustGet(args[0])
			if err != nil {
				return err
			}

			var renderer *glamour.TermRenderer
			if render {
				renderer, err = glamour.NewTermRenderer(glamour.WithAutoStyle())
				if err != nil {
					return errors.Wrap(err, "could not create markdown renderer")
				}
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "# %s\n\n", c.Title)
			for _, m := range c.Messages {
				content := m.Content
				if renderer != nil && m.Role == conversation.RoleAssistant && !m.IsError {
					if out, err := renderer.Render(content); err == nil {
						content = strings.Trim(out, "\n")
					}
				}
				_, _ = fmt.Fprintf(w, "[%s] %s: %s\n\n",
					m.Timestamp.Local().Format("2006-01-02 15:04"), speaker(m), content)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&render, "render", false, "Render assistant replies as markdown")

	return cmd
}

func speaker(m *conversation.Message) string {
	switch {
	case m.IsError:
		return "Error"
	case m.Role == conversation.RoleAssistant:
		return "Assistant"
	}
	return "You"
}
