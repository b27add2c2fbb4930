package main

import (
	"context"
	"fmt"
	"os"

	"spark-backend/cmd"
	"spark-backend/internal/config"

	"github.com/spf13/cobra"
)

var (
	envFile string
	app     *cmd.App
)

var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Chat, image and video generation from the terminal",
	Long: `Studio drives the generative model service directly, without the API server.

Configuration is read from the environment, optionally seeded from a dotenv
file given with --env. Set MODEL_PROVIDER=mock to try the commands offline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		if err := cmd.LoadEnv(envFile); err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		app, err = cmd.NewApp(c.Context(), cfg)
		return err
	},
	PersistentPostRun: func(c *cobra.Command, args []string) {
		if app != nil {
			app.Close()
		}
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to load env from")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
