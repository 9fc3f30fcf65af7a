package main

import (
	"os"

	"cosmossdk.io/log"

	"github.com/hcfprotocol/hcfchain/cmd/hcfd/cmd"
)

func main() {
	rootCmd := cmd.NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		log.NewLogger(os.Stderr).Error("failure when running hcfd", "err", err)
		os.Exit(1)
	}
}
