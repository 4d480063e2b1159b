package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the stored conversation collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := &jsonschema.Reflector{
				DoNotReference: true,
				Anonymous:      true,
			}
			schema := r.Reflect([]*conversation.Conversation{})
			schema.Title = "chatterbox conversations"

			b, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return errors.Wrap(err, "could not encode schema")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}
