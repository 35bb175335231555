package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/glint-chain/glintd/libs/log"
)

var (
	logLevel  = log.LogLevelInfo
	logFormat = log.LogFormatPlain

	logger = log.MustNewDefaultLogger(log.LogFormatPlain, log.LogLevelInfo)
)

// DefaultGlintDir is the default home directory.
var DefaultGlintDir = os.ExpandEnv(filepath.Join("$HOME", ".glintd"))

func registerFlagsRootCmd(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "log level")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", logFormat, "log format (json, plain)")
}

// RootCmd is the root command for glintd.
var RootCmd = &cobra.Command{
	Use:   "glintd",
	Short: "Light client daemon for Glint networks",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == VersionCmd.Name() {
			return nil
		}

		var err error
		logger, err = log.NewDefaultLogger(logFormat, logLevel)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		return nil
	},
}

func init() {
	registerFlagsRootCmd(RootCmd)
}
