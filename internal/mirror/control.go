package mirror

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/mirrorctl/appmirror/internal/catalog"
)

// Run mirrors the catalog described by config.
//
// On failure a fatal line naming the failing URL or path is printed on
// the console before the error is returned.  The caller is expected to
// terminate the process with a non-zero status.
func Run(ctx context.Context, config *Config, opts ...Option) error {
	m, err := NewMirror(config, opts...)
	if err != nil {
		return err
	}

	slog.Info("sync starts", "base_url", config.BaseURL.String(), "path", m.tree.Root())
	if err := m.Sync(ctx); err != nil {
		m.console.Fatal(FailureMessage(err))
		return err
	}

	if !m.console.Quiet() {
		m.PrintStats(m.console.Writer())
	}
	slog.Info("sync ends")
	return nil
}

// FailureMessage returns the one-line description of a failed run.
func FailureMessage(err error) string {
	var fetchErr *FetchError
	var fsErr *FilesystemError
	var parseErr *catalog.ParseError

	switch {
	case errors.As(err, &fetchErr):
		return "Cannot get " + fetchErr.URL + ". Exit."
	case errors.As(err, &fsErr):
		return "Cannot " + fsErr.Op + " " + fsErr.Path + ". Exit."
	case errors.As(err, &parseErr):
		if parseErr.Path != "" {
			return "Cannot parse " + parseErr.Path + ". Exit."
		}
		return "Cannot parse index. Exit."
	case errors.Is(err, context.Canceled):
		return "Interrupted. Exit."
	default:
		return "Sync failed. Exit."
	}
}
