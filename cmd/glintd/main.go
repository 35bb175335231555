package main

import (
	"os"

	"github.com/glint-chain/glintd/cmd/glintd/commands"
	"github.com/glint-chain/glintd/libs/cli"
)

func main() {
	rootCmd := commands.RootCmd
	rootCmd.AddCommand(
		commands.StartCmd,
		commands.VersionCmd,
	)

	cmd := cli.PrepareBaseCmd(rootCmd, "GLINT", commands.DefaultGlintDir)
	if err := cmd.Execute(); err != nil {
		os.Exit(2)
	}
}
