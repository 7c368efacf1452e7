// Command algodesk is the admin console for a multi-account algorithmic
// trading backend.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"algodesk/internal/cli"
	apperrors "algodesk/internal/errors"
	"algodesk/internal/logging"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	rootCmd := cli.NewRootCmd(logging.NewLogger())
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", apperrors.UserMessage(err, err.Error()))
		os.Exit(1)
	}
}
