package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/inboxops/autotag/internal/letters"
	"github.com/inboxops/autotag/internal/model"
)

// terminalPrompter asks for campaign letters on the terminal. Presented
// items are queued on a channel and answered by a single reader
// goroutine, so the resolver never blocks on stdin.
type terminalPrompter struct {
	items chan model.QueueItem
	out   io.Writer
	in    io.Reader
}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{
		items: make(chan model.QueueItem, 64),
		out:   os.Stdout,
		in:    os.Stdin,
	}
}

func (p *terminalPrompter) Present(item model.QueueItem) {
	select {
	case p.items <- item:
	default:
		zap.L().Warn("prompt queue full, dropping presentation", zap.String("url", item.URL))
	}
}

func (p *terminalPrompter) Drained() {
	fmt.Fprintln(p.out, "all pending letters decided")
}

// Serve reads decisions until the context ends. It must run in its own
// goroutine.
func (p *terminalPrompter) Serve(ctx context.Context, resolver *letters.Resolver) {
	scanner := bufio.NewScanner(p.in)
	for {
		var item model.QueueItem
		select {
		case <-ctx.Done():
			return
		case item = <-p.items:
		}

		for {
			fmt.Fprintf(p.out, "campaign letter for %s (panel %s) [A-Z, \"-\" skips]: ", item.URL, item.PanelName)
			if !scanner.Scan() {
				return
			}
			answer := strings.TrimSpace(scanner.Text())
			if answer == "-" {
				if err := resolver.Skip(ctx); err != nil {
					fmt.Fprintf(p.out, "skip failed: %v\n", err)
				}
				break
			}
			if err := resolver.Assign(ctx, answer); err != nil {
				fmt.Fprintf(p.out, "rejected: %v\n", err)
				continue
			}
			break
		}
	}
}
