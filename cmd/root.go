package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facemark",
	Short: "Face recognition attendance service",
	Long: `Facemark runs timed attendance sessions and marks students present
by matching face embeddings against the enrolled roster. Sessions are
scoped to a department, year and division and close automatically when
their duration elapses.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
