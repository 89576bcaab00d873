package autolite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ExitCannotExecute is the shell's exit code for "command invoked cannot execute".
// A task exited with it is skipped, not failed.
const ExitCannotExecute = 126

// profilePreamble loads the user's shell profile before a command.
const profilePreamble = `
if [ -e ~/.bashrc ]
then
    . ~/.bashrc
elif [ -e ~/.bash_profile ]
then
    . ~/.bash_profile
fi
`

// Shell runs commands with a shell, and tells their exit codes.
type Shell struct {
	// Path is the shell executable. It is /bin/sh when empty.
	Path string

	// Profile makes commands source the user's bash profile first.
	Profile bool

	// Stdout and Stderr are where output of scripts goes.
	// Task commands write to their log files instead.
	Stdout io.Writer
	Stderr io.Writer
}

// Command creates a command running script with env added to the current environment.
func (sh *Shell) Command(ctx context.Context, script string, env ...string) *exec.Cmd {
	path := "/bin/sh"
	if sh != nil && sh.Path != "" {
		path = sh.Path
	}
	if sh != nil && sh.Profile {
		script = profilePreamble + script
	}
	c := exec.CommandContext(ctx, path, "-c", script)
	c.Env = append(os.Environ(), env...)
	if sh != nil {
		c.Stdout = sh.Stdout
		c.Stderr = sh.Stderr
	}
	return c
}

// Run runs script and waits for it. It returns the script's exit code.
// The error is not nil only when the shell couldn't be run at all.
func (sh *Shell) Run(ctx context.Context, script string, env ...string) (int, error) {
	err := sh.Command(ctx, script, env...).Run()
	return exitCode(err)
}

// True reports whether script exits with 0.
// Empty script is always true.
func (sh *Shell) True(ctx context.Context, script string, env ...string) (bool, error) {
	if script == "" {
		return true, nil
	}
	code, err := sh.Run(ctx, script, env...)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// exitCode extracts the exit code from an error returned by exec.Cmd.Run or Wait.
// A process killed by a signal has exit code -1.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("run shell: %w", err)
}
