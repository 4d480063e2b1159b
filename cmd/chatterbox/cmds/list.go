package cmds

import (
	"context"
	"time"

	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

type ListCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ListCommand)(nil)

type ListSettings struct {
	Tokens bool `glazed.parameter:"tokens"`
}

func NewListCommand() (*ListCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}

	return &ListCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list",
			cmds.WithShort("List conversations, most recently active first"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"tokens",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Count the tokens of every conversation (cl100k_base)"),
					parameters.WithDefault(false),
				),
			),
			cmds.WithLayersList(
				glazedParameterLayer,
			),
		),
	}, nil
}

func (c *ListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &ListSettings{}
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

	var codec tokenizer.Codec
	if s.Tokens {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return errors.Wrap(err, "could not create tokenizer")
		}
	}

	for _, conv := range a.store.List() {
		row := types.NewRow(
			types.MRP("id", conv.ID),
			types.MRP("title", conv.Title),
			types.MRP("messages", len(conv.Messages)),
			types.MRP("last_activity", lastActivity(conv).Local().Format("2006-01-02 15:04")),
		)
		if s.Tokens {
			n, err := countTokens(codec, conv)
			if err != nil {
				return err
			}
			row.Set("tokens", n)
		}
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}

	return nil
}

func lastActivity(c *conversation.Conversation) time.Time {
	if last := c.LastMessage(); last != nil {
		return last.Timestamp
	}
	return c.CreatedAt
}

func countTokens(codec tokenizer.Codec, c *conversation.Conversation) (int, error) {
	total := 0
	for _, m := range c.Messages {
		ids, _, err := codec.Encode(m.Content)
		if err != nil {
			return 0, errors.Wrapf(err, "could not encode message %s", m.ID)
		}
		total += len(ids)
	}
	return total, nil
}
