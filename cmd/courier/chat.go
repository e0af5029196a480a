package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/staybridge/courier/internal/client"
	"github.com/staybridge/courier/internal/wire"
)

// newChatCmd returns an interactive terminal chat client, mostly useful
// for poking at a running server.
func newChatCmd() *cobra.Command {
	var flagUser string
	var flagPeer string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat client",
		Long: `Connects to a courier server, authenticates, and exchanges messages
with one peer. Lines typed on stdin are sent; incoming messages and read
receipts are printed as they arrive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagUser == "" || flagPeer == "" {
				return fmt.Errorf("--user and --peer are required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			addr := cfg.Addr
			if strings.HasPrefix(addr, ":") {
				addr = "localhost" + addr
			}
			url := "ws://" + addr + cfg.WSPath

			c := client.New(url, cfg.ReconnectDelay, logger)
			defer c.Disconnect()

			interactive := term.IsTerminal(int(os.Stdin.Fd()))

			c.On(client.EventOpen, func(env *wire.Envelope) {
				fmt.Fprintf(os.Stderr, "* connected to %s\n", url)
			})
			c.On(client.EventClose, func(env *wire.Envelope) {
				fmt.Fprintln(os.Stderr, "* disconnected")
			})
			c.On(client.EventNewMessage, func(env *wire.Envelope) {
				var push wire.MessagePush
				if err := env.Bind(&push); err != nil {
					return
				}
				fmt.Printf("%s: %s\n", push.Message.SenderID, push.Message.Content)
				// Reading it in a terminal counts as reading it.
				c.MarkRead(push.Message.ID)
			})
			c.On(client.EventMessageRead, func(env *wire.Envelope) {
				var receipt wire.MessageRead
				if err := env.Bind(&receipt); err != nil {
					return
				}
				fmt.Fprintf(os.Stderr, "* %s read %s\n", flagPeer, receipt.MessageID)
			})

			c.Authenticate(flagUser)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				if interactive {
					fmt.Printf("%s> ", flagUser)
				}
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" {
					break
				}
				c.SendMessage(flagPeer, line)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&flagUser, "user", "", "user identifier to authenticate as")
	cmd.Flags().StringVar(&flagPeer, "peer", "", "peer user identifier to chat with")
	return cmd
}
