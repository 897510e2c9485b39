package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "support-desk",
		Short:         "Support ticket lifecycle and SLA service",
		RunE:          serve,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the notification workers and the SLA scheduler",
		RunE:  serve,
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run a single SLA sweep and exit",
		RunE:  sweep,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
		RunE:  runMigrate,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the support-desk version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	version = "dev"
)

func main() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll migrations back instead of applying them")
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "limit the number of migrations (0 means all)")
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list pending migrations and exit")

	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "support-desk:", err)
		os.Exit(1)
	}
}
