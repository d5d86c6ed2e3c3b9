// Command feedmap maps the fields of XML product feeds and exports the
// transformed feed.
//
// Print the fields of a feed:
//
//	feedmap schema products.xml
//	curl -s https://shop.example/feed.xml | feedmap schema -
//
// Transform with a rules file, or with a profile saved for a shop:
//
//	feedmap transform products.xml --rules google.yaml --out google.xml
//	feedmap transform --shop acme --profile google
//	feedmap transform --dir ./feeds --rules google.yaml
//
// Manage shops and profiles:
//
//	feedmap shop add acme --feed-url https://acme.example/feed.xml
//	feedmap profile save acme google --rules google.yaml
//
// Configuration is read from ~/.config/feedmap/config.toml; `feedmap config
// init` writes a commented sample.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gitlab.com/tozd/go/errors"

	_ "feedmap/internal/storage/mssql"
	_ "feedmap/internal/storage/postgres"
	_ "feedmap/internal/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, http.DefaultClient)
	stop()
	os.Exit(code)
}

// run is split out from main so we can unit test the command without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	a := newApp(stdin, stdout, stderr, httpClient)
	defer a.close()

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintf(stderr, "feedmap: %v\n", err)
	var ue *usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}

// usageError marks errors caused by how the command was invoked.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: errors.Errorf(format, args...)}
}
