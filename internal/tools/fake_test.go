package tools

import (
	"context"
	"io"
	"sync"
)

// fakeExecutor records commands and answers with canned output.
type fakeExecutor struct {
	mu       sync.Mutex
	commands []Command
	stdin    []string
	output   []byte
	err      error
}

func (f *fakeExecutor) Run(ctx context.Context, cmd Command) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commands = append(f.commands, cmd)
	if cmd.Stdin != nil {
		data, _ := io.ReadAll(cmd.Stdin)
		f.stdin = append(f.stdin, string(data))
	}
	if f.err != nil {
		return nil, f.err
	}
	if cmd.Stdout != nil {
		if _, err := cmd.Stdout.Write(f.output); err != nil {
			return nil, err
		}
		return &Result{}, nil
	}
	return &Result{Stdout: f.output}, nil
}
