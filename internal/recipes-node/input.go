package recipesnode

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// ReadLines feeds trimmed, non-empty lines from r into the returned
// channel, which is closed on EOF, read error, or ctx cancellation.
func ReadLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
