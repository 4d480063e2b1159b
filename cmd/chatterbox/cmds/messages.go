package cmds

import (
	"context"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
)

// MessagesCommand emits one row per message of a conversation.
type MessagesCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*MessagesCommand)(nil)

type MessagesSettings struct {
	Conversation string `glazed.parameter:"conversation"`
	SkipErrors   bool   `glazed.parameter:"skip-errors"`
}

func NewMessagesCommand() (*MessagesCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}

	return &MessagesCommand{
		CommandDescription: cmds.NewCommandDescription(
			"messages",
			cmds.WithShort("List the messages of a conversation"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"skip-errors",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Leave out locally generated error messages"),
					parameters.WithDefault(false),
				),
			),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"conversation",
					parameters.ParameterTypeString,
					parameters.WithHelp("Conversation id"),
					parameters.WithRequired(true),
				),
			),
			cmds.WithLayersList(
				glazedParameterLayer,
			),
		),
	}, nil
}

func (c *MessagesCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &MessagesSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}

	a, err := openAppFromContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	conv, err := a.mustGet(s.Conversation)
	if err != nil {
		return err
	}

	for _, m := range conv.Messages {
		if s.SkipErrors && m.IsError {
			continue
		}
		row := types.NewRow(
			types.MRP("id", m.ID),
			types.MRP("timestamp", m.Timestamp.Local().Format(time.RFC3339)),
			types.MRP("role", string(m.Role)),
			types.MRP("is_error", m.IsError),
			types.MRP("content", m.Content),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}

	return nil
}
