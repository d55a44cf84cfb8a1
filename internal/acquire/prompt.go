package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrNoOperator is returned when the console closes before confirmation
var ErrNoOperator = errors.New("no operator confirmation: input closed")

// Prompter blocks until a human operator confirms a manual step
type Prompter interface {
	Confirm(ctx context.Context, message string) error
}

// ConsolePrompter prints a message and waits for a line of input.
// A single goroutine owns the reader for the life of the prompter, so a
// line typed after a cancelled Confirm answers the next one.
type ConsolePrompter struct {
	in  *bufio.Reader
	out io.Writer

	start sync.Once
	lines chan error
}

func NewConsolePrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{
		in:    bufio.NewReader(in),
		out:   out,
		lines: make(chan error),
	}
}

func (p *ConsolePrompter) readLines() {
	defer close(p.lines)
	for {
		_, err := p.in.ReadString('\n')
		p.lines <- err
		if err != nil {
			return
		}
	}
}

// Confirm returns nil once a line is read. A closed input or a cancelled
// ctx is an error.
func (p *ConsolePrompter) Confirm(ctx context.Context, message string) error {
	fmt.Fprintln(p.out, message)
	p.start.Do(func() { go p.readLines() })

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-p.lines:
		if !ok || errors.Is(err, io.EOF) {
			return ErrNoOperator
		}
		if err != nil {
			return fmt.Errorf("reading confirmation: %w", err)
		}
		return nil
	}
}
