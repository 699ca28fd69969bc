package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/veriport/veriport/internal/cli"
)

var version = "dev"

func main() {
	// Optional .env in the working directory; real env vars win
	_ = godotenv.Load()

	if err := cli.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
