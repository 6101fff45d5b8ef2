package main

import (
	"os"

	"github.com/jusunglee/mta-arrivals/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
