package main

import (
	"os"

	"tradesync/internal/logger"
)

func main() {
	if err := Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
