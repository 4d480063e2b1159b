package cmds

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/go-go-golems/chatterbox/pkg/events"
	"github.com/go-go-golems/chatterbox/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewSendCommand() *cobra.Command {
	var conversationID string
	var printEvents bool

	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Send a single message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				return errors.New("nothing to send")
			}

			a, err := openAppFromCommand(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			options := []session.Option{session.WithContext(ctx)}
			if printEvents {
				router, err := events.NewEventRouter(events.WithLogger(events.NewWatermill(log.Logger)))
				if err != nil {
					return errors.Wrap(err, "could not create event router")
				}
				router.AddHandler("print-events", events.Topic, router.DumpRawEvents)

				routerCtx, cancelRouter := context.WithCancel(ctx)
				eg := &errgroup.Group{}
				eg.Go(func() error {
					return router.Run(routerCtx)
				})
				<-router.Running()
				defer func() {
					_ = router.Close()
					cancelRouter()
					_ = eg.Wait()
				}()

				options = append(options, session.WithPublisher(router.PublisherManager(events.Topic)))
			}

			c := a.newController(options...)
			if conversationID != "" {
				if !c.SwitchTo(conversationID) {
					return errors.Errorf("unknown conversation %s", conversationID)
				}
			} else if _, err := c.StartNewSession(ctx); err != nil {
				return err
			}

			if err := c.SendMessage(ctx, text); err != nil {
				return err
			}
			c.Wait()

			conv, ok := c.Active()
			if !ok {
				return errors.New("conversation disappeared while sending")
			}
			reply := conv.LastMessage()
			if reply == nil || reply.Role != conversation.RoleAssistant {
				return errors.New("no reply received")
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "%s (%s)\n\n", conv.Title, conv.ID)
			_, _ = fmt.Fprintln(w, reply.Content)
			if reply.IsError {
				return errors.New("chat service call failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "Continue this conversation instead of starting a new one")
	cmd.Flags().BoolVar(&printEvents, "print-events", false, "Print session events as JSON to stdout")

	return cmd
}
