package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Personal lecture tutor over your own documents",
	Long: `lectern turns a document into spoken lectures and answers questions
about them, scoped to your industry and role.

Start the daemon with "lectern start", then onboard, upload a document,
and generate lectures.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(lecturesCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
