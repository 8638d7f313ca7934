package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"wa-blaster/internal/bootstrap"

	"github.com/spf13/cobra"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "wa-blaster",
	Short: "Bulk messaging through a WhatsApp Web session",
	Long: `wa-blaster drives a logged-in WhatsApp Web tab to message many numbers,
groups or business labels, with per-recipient results.

Run "serve" for the interactive console, the auto-reply loop and the AMQP
command consumer. The other commands run a single command and exit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console, auto-reply loop and command consumer",
	Args:  cobra.NoArgs,
	Run: func(*cobra.Command, []string) {
		bootstrap.NewApp().Run()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
