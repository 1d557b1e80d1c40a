package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hallway/internal/api/auth"
	"github.com/hallway/internal/broadcast"
	"github.com/hallway/internal/client"
	"github.com/hallway/pkg/models"
)

func main() {
	app := &cli.App{
		Name:  "hallctl",
		Usage: "Hallway terminal client - tail conversations, send messages, check unread",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "hallway server base URL",
				Value:   "http://localhost:8990",
				EnvVars: []string{"HALLCTL_SERVER"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer token",
				EnvVars: []string{"HALLCTL_TOKEN"},
			},
		},
		Commands: []*cli.Command{
			tailCommand(),
			sendCommand(),
			unreadCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func tailCommand() *cli.Command {
	return &cli.Command{
		Name:      "tail",
		Usage:     "Follow a conversation, merging push and poll streams",
		ArgsUsage: "CONVERSATION_ID",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "poll interval",
				Value: client.DefaultPollInterval,
			},
			&cli.BoolFlag{
				Name:  "no-push",
				Usage: "disable the websocket push path (polling only)",
			},
		},
		Action: func(c *cli.Context) error {
			conversationID := c.Args().First()
			if conversationID == "" {
				return fmt.Errorf("conversation id required")
			}

			api := client.NewAPI(c.String("server"), c.String("token"))
			view := client.NewView()

			interval := c.Duration("interval")
			if !c.IsSet("interval") {
				// Let the server set the cadence unless the flag says otherwise.
				if advertised, err := api.PollInterval(c.Context); err == nil && advertised > 0 {
					interval = advertised
				}
			}

			var sub broadcast.Subscription
			if !c.Bool("no-push") {
				wsSub, err := client.DialWS(c.String("server"), c.String("token"),
					broadcast.ConversationTopic(conversationID))
				if err != nil {
					// Push is an optimization; fall back to polling only.
					fmt.Fprintf(os.Stderr, "push unavailable (%v), polling only\n", err)
				} else {
					sub = wsSub
				}
			}

			// Printing goes by id, not list position: a gap-filling older
			// message merges into the middle of the view, so a tail slice
			// would skip it and reprint the newest lines instead.
			printed := make(map[string]bool)
			notify := func(int) { printUnseen(os.Stdout, view, printed) }

			watcher := client.NewWatcher(view, api.Fetcher(conversationID), sub, interval, notify)

			// Initial catch-up before the ticker starts.
			if err := watcher.Poll(c.Context); err != nil {
				return fmt.Errorf("initial fetch failed: %w", err)
			}
			printUnseen(os.Stdout, view, printed)

			watcher.Start()
			defer watcher.Close()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt)
			<-quit
			return nil
		},
	}
}

// printUnseen writes every message not yet printed, oldest first, and marks
// it. Safe to call after any merge regardless of where the new messages
// landed in the view.
func printUnseen(w io.Writer, view *client.View, printed map[string]bool) {
	for _, msg := range view.Messages() {
		if printed[msg.ID] {
			continue
		}
		printMessage(w, msg)
		printed[msg.ID] = true
	}
}

func printMessage(w io.Writer, msg models.Message) {
	name := msg.SenderName
	if name == "" {
		name = msg.SenderID
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04:05"), name, msg.Content)
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a message to a conversation",
		ArgsUsage: "CONVERSATION_ID CONTENT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("conversation id and content required")
			}

			api := client.NewAPI(c.String("server"), c.String("token"))
			ctx, cancel := context.WithTimeout(c.Context, 15*time.Second)
			defer cancel()

			id, createdAt, err := api.Send(ctx, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}
			fmt.Printf("sent %s at %s\n", id, createdAt.Local().Format(time.RFC3339))
			return nil
		},
	}
}

func unreadCommand() *cli.Command {
	return &cli.Command{
		Name:  "unread",
		Usage: "Show per-conversation unread counts",
		Action: func(c *cli.Context) error {
			api := client.NewAPI(c.String("server"), c.String("token"))
			ctx, cancel := context.WithTimeout(c.Context, 15*time.Second)
			defer cancel()

			counts, err := api.UnreadCounts(ctx)
			if err != nil {
				return err
			}
			if len(counts) == 0 {
				fmt.Println("no conversations")
				return nil
			}
			for id, n := range counts {
				fmt.Printf("%s\t%d\n", id, n)
			}
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a development bearer token (requires the server's JWT secret)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Usage: "user id"},
			&cli.StringFlag{Name: "name", Usage: "display name"},
			&cli.StringFlag{Name: "role", Value: "MEMBER", Usage: "role (MEMBER or ADMIN)"},
			&cli.StringFlag{
				Name:    "secret",
				Usage:   "server JWT secret",
				EnvVars: []string{"HALLWAY_AUTH_JWT_SECRET"},
			},
		},
		Action: func(c *cli.Context) error {
			token, err := auth.SignToken(auth.Identity{
				UserID: c.String("user"),
				Name:   c.String("name"),
				Role:   c.String("role"),
			}, c.String("secret"))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
