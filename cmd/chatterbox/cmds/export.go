package cmds

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewExportCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAppFromCommand(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			conversations := a.store.Snapshot()
			w := cmd.OutOrStdout()

			switch format {
			case "yaml", "yml":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(conversations); err != nil {
					return errors.Wrap(err, "could not encode conversations")
				}
				return enc.Close()

			case "json":
				b, err := conversation.EncodeCollection(conversations)
				if err != nil {
					return err
				}
				var out bytes.Buffer
				if err := json.Indent(&out, b, "", "  "); err != nil {
					return errors.Wrap(err, "could not indent conversations")
				}
				_, err = fmt.Fprintln(w, out.String())
				return err

			default:
				return errors.Errorf("unknown format %q, use yaml or json", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Output format (yaml, json)")

	return cmd
}
