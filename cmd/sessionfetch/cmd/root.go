// Package cmd provides the sessionfetch CLI commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/sessionfetch/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sessionfetch",
	Short: "sessionfetch - self-healing bearer token client and session server",
	Long: `sessionfetch sends HTTP requests with a bearer token that is always
well formed and small enough for a request header. Tokens that grew too large
are repaired by the session server and refreshed into a compact form.

Configuration:
  Config is loaded from sessionfetch.yaml in the current directory or
  $HOME/.sessionfetch/. A .env file in the working directory is read first.

  Environment variables override config values with the SESSIONFETCH_ prefix.
  Example: SESSIONFETCH_SERVER_ADDR=127.0.0.1:9090

Commands:
  serve       Run the token, repair and demo API server
  issue       Create a session and write the session file
  fetch       Send an authenticated request using the session file
  inspect     Show the shape verdict and unverified claims of a token
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sessionfetch.yaml)")
}

func loadConfig() (*config.AppConfig, error) {
	return config.Load(cfgFile)
}

// baseURL picks the server address clients talk to.
func baseURL(flagValue string, cfg *config.AppConfig) string {
	if flagValue != "" {
		return strings.TrimRight(flagValue, "/")
	}
	return "http://" + cfg.Server.Addr
}
