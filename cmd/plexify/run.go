package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Plexify-AI/plexifybid-sub001/internal/cli"
	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
)

// Exit codes by error kind; anything unclassified exits 1.
const (
	exitValidation = 2
	exitConflict   = 3
	exitNotFound   = 4
)

func Run(ctx context.Context, args []string) int {
	root := cli.NewRootCmd(Version)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error: "+err.Error())
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	switch errors.KindOf(err) {
	case errors.KindValidation:
		return exitValidation
	case errors.KindConflict:
		return exitConflict
	case errors.KindNotFound:
		return exitNotFound
	default:
		return 1
	}
}
