package cmds

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/chatterbox/pkg/events"
	"github.com/go-go-golems/chatterbox/pkg/session"
	"github.com/go-go-golems/chatterbox/pkg/ui"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewChatCommand() *cobra.Command {
	var noMarkdown bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAppFromCommand(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			router, err := events.NewEventRouter(events.WithLogger(events.NewWatermill(log.Logger)))
			if err != nil {
				return errors.Wrap(err, "could not create event router")
			}
			defer func() {
				_ = router.Close()
			}()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			controller := a.newController(
				session.WithPublisher(router.PublisherManager(events.Topic)),
				session.WithContext(ctx),
			)

			options := []tea.ProgramOption{tea.WithAltScreen()}
			if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				tty, err := ui.OpenTTY()
				if err != nil {
					return errors.Wrap(err, "stdin is not a terminal and no tty could be opened")
				}
				defer func() {
					_ = tty.Close()
				}()
				options = append(options, tea.WithInput(tty))
			}

			p := tea.NewProgram(
				ui.InitialModel(ctx, controller, ui.WithMarkdown(!noMarkdown)),
				options...,
			)
			router.AddHandler("ui-forward", events.Topic, ui.ForwardEventsFunc(p))

			eg, groupCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return router.Run(groupCtx)
			})
			eg.Go(func() error {
				// stop the router once the program exits
				defer cancel()
				<-router.Running()
				_, err := p.Run()
				return err
			})

			err = eg.Wait()
			_ = controller.Close()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noMarkdown, "no-markdown", false, "Show replies as plain text")

	return cmd
}
