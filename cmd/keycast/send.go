package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keycast/keycast/internal/tui/client"
)

func sendCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Broadcast a message through a running gateway",
		Long:  `Send posts the message to the gateway's trigger endpoint, which relays it to every connected client.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			ack, err := client.NewHTTPClient(baseURL).Trigger(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%q)\n", ack.Status, ack.Message, ack.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8000", "Base URL of the gateway")

	return cmd
}
