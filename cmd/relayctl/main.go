package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/chat-webhook-relay/internal/config"
	"github.com/tjfontaine/chat-webhook-relay/internal/logstore"
	"github.com/tjfontaine/chat-webhook-relay/internal/signature"
)

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Operate the webhook relay and processing agent",
}

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfigPath(), "config file (HOOKRELAY_* variables override it)")

	rootCmd.AddCommand(newSignCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newMetricsCmd())
	rootCmd.AddCommand(newTailCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "relayctl: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("HOOKRELAY_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newSignCmd() *cobra.Command {
	var (
		secret    string
		timestamp string
		bodyFile  string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the signature headers for a request body (read from stdin by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := resolveSecret(secret)
			if err != nil {
				return err
			}

			body, err := readBody(cmd.InOrStdin(), bodyFile)
			if err != nil {
				return err
			}

			if timestamp == "" {
				timestamp = strconv.FormatInt(time.Now().Unix(), 10)
			}
			sig := signature.New(secret).Sign(timestamp, body)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", signature.TimestampHeader, timestamp)
			fmt.Fprintf(out, "%s: %s\n", signature.SignatureHeader, sig)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&secret, "secret", "", "signing secret (defaults to relay.signing_secret)")
	flags.StringVar(&timestamp, "timestamp", "", "unix seconds to sign with (defaults to now)")
	flags.StringVar(&bodyFile, "file", "", "read the body from this file instead of stdin")

	return cmd
}

func newSendCmd() *cobra.Command {
	var (
		secret  string
		url     string
		user    string
		channel string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a signed event_callback to the relay and print its reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := resolveSecret(secret)
			if err != nil {
				return err
			}
			if url == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				url = fmt.Sprintf("http://localhost:%d/webhook", cfg.Relay.Port)
			}

			body, err := json.Marshal(map[string]any{
				"type": "event_callback",
				"event": map[string]string{
					"type":    "message",
					"text":    strings.Join(args, " "),
					"user":    user,
					"channel": channel,
					"ts":      strconv.FormatInt(time.Now().Unix(), 10),
				},
			})
			if err != nil {
				return err
			}

			ts, sig := signature.New(secret).SignNow(body)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(signature.TimestampHeader, ts)
			req.Header.Set(signature.SignatureHeader, sig)

			resp, err := (&http.Client{Timeout: timeout}).Do(req)
			if err != nil {
				return fmt.Errorf("send webhook: %w", err)
			}
			defer resp.Body.Close()

			reply, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read reply: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s", resp.Status, reply)
			if resp.StatusCode >= 300 {
				return fmt.Errorf("relay answered %s", resp.Status)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&secret, "secret", "", "signing secret (defaults to relay.signing_secret)")
	flags.StringVar(&url, "url", "", "relay webhook URL (defaults to http://localhost:<relay.port>/webhook)")
	flags.StringVar(&user, "user", "U-relayctl", "user id to report")
	flags.StringVar(&channel, "channel", "C-relayctl", "channel id to report")
	flags.DurationVar(&timeout, "timeout", 35*time.Second, "request timeout")

	return cmd
}

func newMetricsCmd() *cobra.Command {
	var (
		logDir      string
		lines       int
		date        string
		formatFlag  string
		showEntries bool
	)

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Summarize the agent's activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(logDir)
			if err != nil {
				return err
			}

			day, err := parseDay(date)
			if err != nil {
				return err
			}

			entries, err := store.TailAt(day, lines)
			if err != nil {
				return err
			}
			m := logstore.ComputeMetrics(entries)

			if !showEntries {
				entries = nil
			}
			return WriteMetrics(cmd.OutOrStdout(), m, entries, strings.ToLower(formatFlag))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&logDir, "log-dir", "", "log directory (defaults to agent.log_dir)")
	flags.IntVar(&lines, "lines", 50, "number of trailing lines to scan (-1 for the whole day)")
	flags.StringVar(&date, "date", "", "UTC day to read, YYYY-MM-DD (defaults to today)")
	flags.StringVar(&formatFlag, "format", "table", "output format: table or json")
	flags.BoolVar(&showEntries, "entries", false, "also list the scanned entries")

	return cmd
}

func newTailCmd() *cobra.Command {
	var (
		logDir string
		lines  int
		follow bool
		color  bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the last lines of today's activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(logDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !cmd.Flags().Changed("color") {
				color = isTerminal(out)
			}

			entries, err := store.Tail(lines)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(out, FormatEntry(e, color))
			}

			if !follow {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return store.Follow(ctx, func(e logstore.Entry) {
				fmt.Fprintln(out, FormatEntry(e, color))
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&logDir, "log-dir", "", "log directory (defaults to agent.log_dir)")
	flags.IntVarP(&lines, "lines", "n", 20, "number of trailing lines to print")
	flags.BoolVarP(&follow, "follow", "f", false, "keep printing entries as they are appended")
	flags.BoolVar(&color, "color", false, "colorize tags (defaults to on for terminals)")

	return cmd
}

func resolveSecret(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Relay.SigningSecret == "" {
		return "", errors.New("no signing secret: pass --secret or set HOOKRELAY_RELAY__SIGNING_SECRET")
	}
	return cfg.Relay.SigningSecret, nil
}

func openStore(logDir string) (*logstore.Store, error) {
	if logDir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		logDir = cfg.Agent.LogDir
	}
	return logstore.New(logDir), nil
}

func readBody(stdin io.Reader, path string) ([]byte, error) {
	if path != "" {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}
	body, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func parseDay(date string) (time.Time, error) {
	if date == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date value: %w", err)
	}
	return t, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
