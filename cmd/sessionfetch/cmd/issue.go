package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/sessionfetch/session"
	"github.com/MrEthical07/sessionfetch/token"
)

var (
	issueUser       string
	issueServer     string
	issueServiceKey string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Create a session and write the session file",
	Long: `Issue asks the session server to create a session for --user and writes
the resulting tokens to client.session_file. The server must have
server.service_key configured; the same key is read from config unless
--service-key is given.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		key := issueServiceKey
		if key == "" {
			key = cfg.Server.ServiceKey
		}
		if key == "" {
			return fmt.Errorf("service key required (server.service_key or --service-key)")
		}

		body, err := json.Marshal(map[string]string{"user_id": issueUser})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, baseURL(issueServer, cfg)+"/admin/v1/sessions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+key)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("issue session: server returned %s", resp.Status)
		}

		var tr session.TokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return fmt.Errorf("decode token response: %w", err)
		}
		if tr.UserID == "" {
			tr.UserID = issueUser
		}
		if err := session.SaveFile(cfg.Client.SessionFile, tr.Session(time.Now())); err != nil {
			return err
		}

		summary, _ := token.Inspect(tr.AccessToken, cfg.Client.MaxTokenBytes)
		fmt.Fprintf(cmd.OutOrStdout(), "session %s for %s written to %s (%d bytes, fits=%v, workspaces=%d)\n",
			summary.SessionID, tr.UserID, cfg.Client.SessionFile, summary.Bytes, summary.Fits, summary.Workspaces)
		return nil
	},
}

func init() {
	issueCmd.Flags().StringVar(&issueUser, "user", "", "user id to issue a session for")
	issueCmd.Flags().StringVar(&issueServer, "server", "", "session server base URL (default: http://<server.addr>)")
	issueCmd.Flags().StringVar(&issueServiceKey, "service-key", "", "admin key for session issuance")
	_ = issueCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(issueCmd)
}
