package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrEthical07/sessionfetch"
	otelexport "github.com/MrEthical07/sessionfetch/metrics/export/otel"
	"github.com/MrEthical07/sessionfetch/session"
)

var (
	fetchMethod       string
	fetchData         string
	fetchHeaders      []string
	fetchServer       string
	fetchForceRefresh bool
	fetchMetrics      bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL",
	Short: "Send an authenticated request using the session file",
	Long: `Fetch resolves a usable access token from client.session_file, refreshing
or repairing the session when needed, and sends the request with it. Any
refreshed session is written back to the file. The response body is copied
to stdout and the status line to stderr.

Example:
  sessionfetch fetch http://127.0.0.1:8080/api/me`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchMethod, "method", "X", http.MethodGet, "HTTP method")
	fetchCmd.Flags().StringVarP(&fetchData, "data", "d", "", "JSON request body")
	fetchCmd.Flags().StringArrayVarP(&fetchHeaders, "header", "H", nil, `extra header as "Name: value" (repeatable)`)
	fetchCmd.Flags().StringVar(&fetchServer, "server", "", "session server base URL (default: http://<server.addr>)")
	fetchCmd.Flags().BoolVar(&fetchForceRefresh, "force-refresh", false, "refresh the session before sending")
	fetchCmd.Flags().BoolVar(&fetchMetrics, "metrics", false, "print client metrics to stderr as OpenTelemetry JSON on exit")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)
	ctx := cmd.Context()

	initial, err := session.LoadFile(cfg.Client.SessionFile)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	base := baseURL(fetchServer, cfg)
	holder := session.NewHolder(initial, &session.TokenEndpoint{BaseURL: base, AnonKey: cfg.Server.AnonKey})
	holder.OnChange(func(s *session.Session) {
		if err := session.SaveFile(cfg.Client.SessionFile, s); err != nil {
			logger.Error("sessionfetch: save session", "error", err)
		}
	})

	client, err := sessionfetch.New().
		WithConfig(cfg.ClientConfigFor(base)).
		WithSessionSource(holder).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}

	if fetchMetrics {
		flush, err := exportMetrics(client, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer flush()
	}

	if fetchForceRefresh {
		if _, err := client.ResolveAccessToken(ctx, true); err != nil {
			return err
		}
	}

	header := make(http.Header)
	for _, h := range fetchHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q", h)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	req := sessionfetch.Request{Method: fetchMethod, URL: args[0], Header: header}
	if fetchData != "" {
		req.Body = []byte(fetchData)
	}

	resp, err := client.Fetch(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), resp.Proto, resp.Status)
	if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return nil
}

// exportMetrics publishes client metrics through an OTel stdout exporter. The
// returned func collects once and shuts the provider down.
func exportMetrics(client *sessionfetch.Client, w io.Writer) (func(), error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	bridge, err := otelexport.NewExporter(provider.Meter("sessionfetch"), client)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.ForceFlush(ctx)
		_ = bridge.Close()
		_ = provider.Shutdown(ctx)
	}, nil
}
