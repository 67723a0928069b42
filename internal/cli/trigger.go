package cli

import (
	"errors"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTriggerCmd создаёт команду вызова webhook.
// Ключ берётся из --key или из SCHEDULER_WEBHOOK_KEY.
func NewTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run one due-schedule pass through the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("SCHEDULER_WEBHOOK_KEY")
			}
			if key == "" {
				return errors.New("webhook key is required (--key or SCHEDULER_WEBHOOK_KEY)")
			}

			resp, err := clientFn().Trigger(key)
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"EXECUTED", "TIMESTAMP"},
				[][]string{{strconv.Itoa(resp.ExecutedCount), resp.Timestamp}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Webhook shared key")

	return cmd
}
