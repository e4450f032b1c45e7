package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chtzvt/rewardd/internal/dispatch"
	"github.com/spf13/cobra"
)

var (
	apiURL     string
	apiToken   string
	outputJSON bool
	timeout    time.Duration
)

const noAPICreds = "no-api-creds"

func main() {
	root := &cobra.Command{
		Use:   "rewardctl",
		Short: "rewardd control/admin CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[noAPICreds] == "1" {
				return nil
			}
			if apiURL == "" || apiToken == "" {
				return fmt.Errorf("--api-url and --api-token are required")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&apiURL, "api-url", os.Getenv("REWARDD_API_URL"), "API URL (or $REWARDD_API_URL)")
	root.PersistentFlags().StringVar(&apiToken, "api-token", os.Getenv("REWARDD_API_TOKEN"), "API token (or $REWARDD_API_TOKEN)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "API request timeout")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	root.AddCommand(statusCmd())
	root.AddCommand(dispatchCmd())

	// Secrets
	gen := secretsGenClusterKeyCmd()
	if gen.Annotations == nil {
		gen.Annotations = map[string]string{}
	}
	gen.Annotations[noAPICreds] = "1"

	secrets := &cobra.Command{Use: "secrets", Short: "Secret store"}
	secrets.AddCommand(
		gen,
		secretsPendingCmd(),
		secretsApprovalCmd(),
		secretsListCmd(),
		secretsAddCmd(),
		secretsRemoveCmd(),
		secretsGetCmd(),
	)
	root.AddCommand(secrets)

	// Completion
	completion := &cobra.Command{
		Use:   "completion",
		Short: "Generate shell completion scripts",
		Run: func(cmd *cobra.Command, args []string) {
			root.GenBashCompletion(os.Stdout)
		},
	}
	if completion.Annotations == nil {
		completion.Annotations = map[string]string{}
	}
	completion.Annotations[noAPICreds] = "1"
	root.AddCommand(completion)

	_ = root.Execute()
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cluster status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client := cliClient()
			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			outResult(status, printStatusTables)
			return nil
		},
	}
}

func dispatchCmd() *cobra.Command {
	var forceProcessing, forceContinueReshard bool
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Trigger one dispatcher invocation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client := cliClient()
			result, err := client.Dispatch(ctx, dispatch.Event{
				ForceProcessing:      forceProcessing,
				ForceContinueReshard: forceContinueReshard,
			})
			if err != nil {
				return err
			}
			outResult(result, printDispatchResultTable)
			return nil
		},
	}
	cmd.Flags().BoolVar(&forceProcessing, "force-processing", false, "Dispatch every incoming shard, ignoring budget, cool-down, and resharding state")
	cmd.Flags().BoolVar(&forceContinueReshard, "force-continue-reshard", false, "Ask the reshard subsystem to force-continue unfinished splits")
	return cmd
}
