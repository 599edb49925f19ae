// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"io"
)

// Run executes the command named by argv and returns the exit code.
func Run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd, args, err := Parse(argv)
	if err != nil {
		DisplayError(stderr, err)
		io.WriteString(stderr, "Run 'webui-chat --help' for usage.\n")
		return GetExitCode(err)
	}

	switch cmd {
	case CmdHelp:
		PrintUsage(stdout)
		return ExitSuccess
	case CmdVersion:
		PrintVersion(stdout)
		return ExitSuccess
	}

	app, err := NewApp(Options{Args: args, Out: stdout})
	if err != nil {
		DisplayError(stderr, err)
		return GetExitCode(err)
	}
	defer app.Close()

	switch cmd {
	case CmdAsk:
		err = RunAsk(ctx, app, args, stdin)
	case CmdModels:
		err = RunModels(ctx, app, stderr)
	default:
		err = RunChat(ctx, app, args)
	}
	if err != nil {
		if !errors.Is(err, errInterrupted) {
			DisplayError(stderr, err)
		}
		return GetExitCode(err)
	}
	return ExitSuccess
}
