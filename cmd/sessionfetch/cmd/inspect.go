package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/sessionfetch/session"
	"github.com/MrEthical07/sessionfetch/token"
)

var (
	inspectMaxBytes    int
	inspectSessionFile string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [token|-]",
	Short: "Show the shape verdict and unverified claims of a token",
	Long: `Inspect decodes an access token without verifying its signature and
reports its size, shape and identifying claims. Pass "-" to read the token
from stdin, or --session to inspect the access token in a session file.

Never use the output for authorization decisions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := inspectInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		summary, err := token.Inspect(raw, inspectMaxBytes)
		report := struct {
			Verdict string        `yaml:"verdict"`
			Summary token.Summary `yaml:"summary"`
			Error   string        `yaml:"error,omitempty"`
		}{Verdict: verdict(raw, inspectMaxBytes), Summary: summary}
		if err != nil {
			report.Error = err.Error()
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(report)
	},
}

func init() {
	inspectCmd.Flags().IntVar(&inspectMaxBytes, "max-bytes", token.DefaultMaxBytes, "header size limit to check against")
	inspectCmd.Flags().StringVar(&inspectSessionFile, "session", "", "read the access token from this session file")
	rootCmd.AddCommand(inspectCmd)
}

func inspectInput(stdin io.Reader, args []string) (string, error) {
	switch {
	case inspectSessionFile != "":
		s, err := session.LoadFile(inspectSessionFile)
		if err != nil {
			return "", err
		}
		return s.AccessToken, nil
	case len(args) == 1 && args[0] != "-":
		return args[0], nil
	case len(args) == 1:
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	default:
		return "", fmt.Errorf("token argument or --session required")
	}
}

func verdict(raw string, maxBytes int) string {
	switch err := token.Check(raw, maxBytes); {
	case err == nil:
		return "valid"
	case errors.Is(err, token.ErrOversized):
		return "oversized"
	case errors.Is(err, token.ErrEmpty):
		return "empty"
	default:
		return "malformed"
	}
}
