// Package main is the entry point for the polosync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"polosync/cmd/polosync/app"
)

func main() {
	// Do not override environment provided by the runtime (e.g. Docker).
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
