package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/mirrorctl/appmirror/internal/catalog"
)

// Version is reported in the default User-Agent.
var Version = "dev"

// SyncStats tracks downloaded bytes for one run.
type SyncStats struct {
	IndexFiles    uint64 // Size of apps/index.json
	MetadataFiles uint64 // Size of apps/<appId>.json files
	ImageFiles    uint64 // Size of images/*
	PackageFiles  uint64 // Size of packages/*
	Total         uint64 // Total size
	FileCount     int    // Total number of files
	AppCount      int    // Number of catalog entries
}

type resourceKind int

const (
	kindIndex resourceKind = iota
	kindMetadata
	kindImage
	kindPackage
)

func (s *SyncStats) add(kind resourceKind, fi *FileInfo) {
	switch kind {
	case kindIndex:
		s.IndexFiles += fi.Size()
	case kindMetadata:
		s.MetadataFiles += fi.Size()
	case kindImage:
		s.ImageFiles += fi.Size()
	case kindPackage:
		s.PackageFiles += fi.Size()
	}
	s.Total += fi.Size()
	s.FileCount++
}

// Option modifies a Mirror at construction time.
type Option func(*Mirror)

// WithConsole sets the console used for progress output.
func WithConsole(c *Console) Option {
	return func(m *Mirror) {
		m.console = c
	}
}

// WithProgressBars enables or disables per-download progress bars.
func WithProgressBars(enabled bool) Option {
	return func(m *Mirror) {
		m.bars = enabled
	}
}

// Mirror implements mirroring logics.
type Mirror struct {
	config     *Config
	tree       *Tree
	console    *Console
	bars       bool
	httpClient *HTTPClient

	statsMu sync.Mutex
	stats   *SyncStats
}

// NewMirror constructs a Mirror from a validated configuration.
func NewMirror(config *Config, opts ...Option) (*Mirror, error) {
	if err := config.Check(); err != nil {
		return nil, errors.Wrap(err, "config")
	}

	tree, err := NewTree(config.PublicPath)
	if err != nil {
		return nil, err
	}

	m := &Mirror{
		config: config,
		tree:   tree,
		bars:   true,
		stats:  &SyncStats{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.console == nil {
		m.console = NewConsole(os.Stdout, config.Color, false)
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "appmirror/" + Version
	}

	// concurrent bars would garble each other
	bars := m.bars && config.MaxConns == 1
	m.httpClient, err = NewHTTPClient(&config.TLS, userAgent, m.console, bars)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Synchronize mirrors the catalog at baseURL into root with default settings.
func Synchronize(ctx context.Context, root, baseURL string) error {
	config := NewConfig()
	config.PublicPath = root
	if err := config.SetBaseURL(baseURL); err != nil {
		return errors.Wrap(err, "base url")
	}
	m, err := NewMirror(config)
	if err != nil {
		return err
	}
	return m.Sync(ctx)
}

// Stats returns the statistics of the last Sync.
func (m *Mirror) Stats() *SyncStats {
	return m.stats
}

// Tree returns the destination tree.
func (m *Mirror) Tree() *Tree {
	return m.tree
}

// Sync replaces the destination tree with a fresh copy of the catalog.
//
// The first error aborts the run.  Files fetched before the failure
// stay on disk; a new run starts over from an empty tree.
func (m *Mirror) Sync(ctx context.Context) error {
	m.stats = &SyncStats{}

	exists, err := m.tree.Exists()
	if err != nil {
		return err
	}
	if exists {
		m.console.Warn("Directories already exists, remove them.")
		slog.Info("removing destination", "path", m.tree.Root())
	}

	m.console.Info("Create basic directories.")
	if err := m.tree.Reset(); err != nil {
		return err
	}

	indexPath, err := m.fetch(ctx, catalog.IndexPath, kindIndex, true)
	if err != nil {
		return err
	}

	m.console.Info("Load app market index file")
	index, err := catalog.ParseFile(indexPath)
	if err != nil {
		return err
	}
	m.stats.AppCount = len(index.Apps)
	slog.Info("index loaded", "apps", len(index.Apps), "base_url", m.config.BaseURL.String())

	if err := m.syncApps(ctx, index.Apps); err != nil {
		return err
	}

	if err := m.tree.Sync(); err != nil {
		return err
	}

	slog.Info("sync succeeded", "path", m.tree.Root(), "apps", m.stats.AppCount, "files", m.stats.FileCount, "bytes", m.stats.Total)
	return nil
}

// syncApps downloads the resources of every app.
func (m *Mirror) syncApps(ctx context.Context, apps []catalog.App) error {
	if m.config.MaxConns == 1 {
		for i := range apps {
			if err := m.syncApp(ctx, i, len(apps), &apps[i]); err != nil {
				return err
			}
		}
		return nil
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(m.config.MaxConns)
	for i := range apps {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			return m.syncApp(ctx, i, len(apps), &apps[i])
		})
	}
	return group.Wait()
}

// syncApp downloads metadata, image and package of one app, in this order.
func (m *Mirror) syncApp(ctx context.Context, i, n int, app *catalog.App) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.console.Entry(i+1, n, app.Name, app.Version)

	resources := []struct {
		path string
		kind resourceKind
	}{
		{app.MetadataPath(), kindMetadata},
		{app.ImagePath(), kindImage},
		{app.PackagePath(), kindPackage},
	}
	for _, r := range resources {
		if _, err := m.fetch(ctx, r.path, r.kind, false); err != nil {
			return err
		}
	}
	return nil
}

// fetch downloads the resource at rel to the same relative path
// in the tree and returns the local path.
func (m *Mirror) fetch(ctx context.Context, rel string, kind resourceKind, leave bool) (string, error) {
	localPath, err := m.tree.Path(rel)
	if err != nil {
		return "", err
	}

	u, err := m.config.Resolve(rel)
	if err != nil {
		return "", &FetchError{URL: rel, Err: err}
	}

	fi, err := m.httpClient.FetchToFile(ctx, u.String(), localPath, leave)
	if err != nil {
		return "", err
	}

	m.statsMu.Lock()
	m.stats.add(kind, fi)
	m.statsMu.Unlock()
	return localPath, nil
}

// PrintStats prints the summary of the last Sync.
func (m *Mirror) PrintStats(w io.Writer) {
	stats := m.stats
	fmt.Fprintf(w, "Destination: %s (%d apps)\n", m.tree.Root(), stats.AppCount)
	fmt.Fprintf(w, "  Index file:     %s\n", formatBytes(stats.IndexFiles))
	fmt.Fprintf(w, "  Metadata files: %s\n", formatBytes(stats.MetadataFiles))
	fmt.Fprintf(w, "  Image files:    %s\n", formatBytes(stats.ImageFiles))
	fmt.Fprintf(w, "  Package files:  %s\n", formatBytes(stats.PackageFiles))
	fmt.Fprintf(w, "  Total size:     %s (%d files)\n", formatBytes(stats.Total), stats.FileCount)
}

// formatBytes renders a byte count with binary units.
func formatBytes(bytes uint64) string {
	if bytes == 0 {
		return "0 B"
	}

	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
	size := float64(bytes)
	unitIndex := 0

	for size >= 1024 && unitIndex < len(units)-1 {
		size /= 1024
		unitIndex++
	}

	if unitIndex == 0 {
		return fmt.Sprintf("%.0f %s", size, units[unitIndex])
	}
	return fmt.Sprintf("%.2f %s", size, units[unitIndex])
}
