package cmd

import (
	"os"
	"time"

	"github.com/AzielCF/az-track/core/config"
	"github.com/AzielCF/az-track/pkg/crypto"
	"github.com/AzielCF/az-track/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-track",
	Short: "Track Roblox presence over http",
	Long: `Polls the Roblox presence API for subscribed accounts and forwards
confirmed presence transitions to webhook destinations.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	cobra.OnInitialize(initApp)
}

func initApp() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	// preparing storage folder if not exist
	if err := os.MkdirAll(cfg.Paths.Storages, 0o755); err != nil {
		logrus.Errorln(err)
	}

	if cfg.Security.SecretKey != "" {
		if err := crypto.SetEncryptionKey(cfg.Security.SecretKey); err != nil {
			logrus.Fatalf("Failed to set encryption key: %v", err)
		}
	} else {
		logrus.Warn("[APP] APP_SECRET_KEY not set; webhook secrets will be stored in plaintext")
	}

	cfg.App.ServerID = utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
