// TeleInterview
//
// A voice interview engine: spoken questions, timed answers, live
// transcripts and scored results.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "teleinterview",
	Short: "TeleInterview - Voice Interview Engine",
	Long: `TeleInterview runs timed, spoken interviews and scores the answers.

  teleinterview config setup                          Set up API keys (first time)
  teleinterview serve                                 Start the server
  teleinterview start --name Ada --title "SRE"        Start an interview
  teleinterview status <id>                           Show a session's state
  teleinterview events <id>                           Stream a session's events
  teleinterview results <id>                          Show the scored results
  teleinterview save <id>                             Archive a finished interview
  teleinterview history                               List archived interviews`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("TELEINTERVIEW_SERVER", "http://localhost:7090"), "TeleInterview server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
