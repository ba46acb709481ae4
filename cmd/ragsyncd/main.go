package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragsync/internal/cli"
	"github.com/cloo-solutions/ragsync/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ragsyncd",
		Short: "ragsync daemon",
		Long:  "ragsync daemon for serving search and ingestion over HTTP and managing the database schema",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if ok, err := cli.CheckHelpJSON(rootCmd, os.Args[1:], os.Stdout); ok {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
