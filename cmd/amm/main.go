package main

import (
	"os"

	"github.com/rovshanmuradov/solana-amm/cmd/amm/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
