package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webchat/internal/config"
	"webchat/internal/logging"
)

var (
	cfg    *config.Config
	logger *zap.Logger

	listenAddr string
	gatewayURL string
	statsDate  string
	statsJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "webchat",
	Short: "Browser chat client for a chat-completion proxy",
	Long: `webchat serves a small browser chat UI and forwards each message, together
with the conversation so far, to a chat-completion proxy.

Configuration comes from the environment (and a .env file if present).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.LogLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser chat UI",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the reference /chat completion backend",
	Args:  cobra.NoArgs,
	RunE:  runProxy,
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram front-end",
	Args:  cobra.NoArgs,
	RunE:  runBot,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize one day of the transcript log",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	serveCmd.Flags().StringVar(&gatewayURL, "gateway", "", "completion endpoint (overrides GATEWAY_URL)")
	proxyCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides PROXY_LISTEN_ADDR)")
	botCmd.Flags().StringVar(&gatewayURL, "gateway", "", "completion endpoint (overrides GATEWAY_URL)")
	statsCmd.Flags().StringVar(&statsDate, "date", "", "day to report as YYYY-MM-DD (default today)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print JSON instead of text")
	rootCmd.AddCommand(serveCmd, proxyCmd, botCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
