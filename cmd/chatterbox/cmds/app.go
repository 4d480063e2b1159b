package cmds

import (
	"context"

	"github.com/go-go-golems/chatterbox/pkg/client"
	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/go-go-golems/chatterbox/pkg/kv"
	"github.com/go-go-golems/chatterbox/pkg/session"
	"github.com/go-go-golems/chatterbox/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app bundles what the client commands share: the opened backend, the
// conversation store on top of it and the chat service client.
type app struct {
	kv     kv.Store
	store  *conversation.Store
	client *client.HTTPClient
}

func openApp(ctx context.Context, s *settings.Settings) (*app, error) {
	backend, err := kv.Open(ctx, s.Store)
	if err != nil {
		return nil, errors.Wrap(err, "could not open store")
	}

	store, err := conversation.NewStore(ctx, backend, conversation.WithKey(s.Store.Key))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	log.Debug().
		Str("backend", string(s.Store.Backend)).
		Int("conversations", store.Len()).
		Msg("Opened conversation store")

	return &app{
		kv:     backend,
		store:  store,
		client: client.NewHTTPClient(s.Client.BaseURL, client.WithTimeout(s.Client.Timeout)),
	}, nil
}

func openAppFromCommand(cmd *cobra.Command) (*app, error) {
	return openAppFromContext(cmd.Context())
}

// openAppFromContext is used by the glazed commands, which only get the
// context of the cobra command they run in.
func openAppFromContext(ctx context.Context) (*app, error) {
	s, err := settingsFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return openApp(ctx, s)
}

func (a *app) newController(options ...session.Option) *session.Controller {
	return session.NewController(a.store, a.client, a.client, options...)
}

func (a *app) Close() error {
	return a.kv.Close()
}

func (a *app) mustGet(id string) (*conversation.Conversation, error) {
	c, ok := a.store.Get(id)
	if !ok {
		return nil, errors.Errorf("unknown conversation %s", id)
	}
	return c, nil
}
