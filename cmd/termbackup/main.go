package main

import (
	"context"
	"errors"
	"os"

	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			console := ui.NewConsole(os.Stderr)
			console.Failure("%v", err)
			if hint := tbkerr.HintOf(err); hint != "" {
				console.Hint(hint)
			}
		}
		os.Exit(1)
	}
}
