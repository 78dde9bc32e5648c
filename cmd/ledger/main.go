package main

import (
	"context"
	"fmt"
	"os"

	"ledger/internal/cli"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Category ledger backend",
	Long: `ledger keeps per-owner spending categories with their incomes and outcomes,
serves them over a JSON HTTP API and relays every change to AMQP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(sheetsAuthCmd())
}

func main() {
	cli.LoadEnvFile()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
