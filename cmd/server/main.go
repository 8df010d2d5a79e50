// Package main provides the entry point for the interview room API server.
//
//	@title						Interview Room API
//	@version					1.0
//	@description				Interview rooms, candidate intake and timed AI-scored interview sessions.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "server",
	Short:   "Interview room API server",
	Long:    "Hosts interview rooms, takes candidate résumés and runs timed, AI-scored interview sessions over a REST API.",
	Version: version,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
