package mirror

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	defaultPublicPath = "./public"
	defaultBaseURL    = "https://app-index.sandstorm.io"
	defaultMaxConns   = 1
)

type tomlURL struct {
	*url.URL
}

// UnmarshalText parses an http or https URL.
//
// The path is kept as written: "https://host/sub" resolves
// "apps/index.json" to "https://host/apps/index.json" while
// "https://host/sub/" resolves it to "https://host/sub/apps/index.json".
func (u *tomlURL) UnmarshalText(text []byte) error {
	parsedURL, err := parseBaseURL(string(text))
	if err != nil {
		return err
	}
	u.URL = parsedURL
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (u tomlURL) MarshalText() ([]byte, error) {
	if u.URL == nil {
		return nil, nil
	}
	return []byte(u.URL.String()), nil
}

func parseBaseURL(s string) (*url.URL, error) {
	parsedURL, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	switch parsedURL.Scheme {
	case "http":
	case "https":
	default:
		return nil, errors.New("unsupported scheme: " + parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return nil, errors.New("no host in url: " + s)
	}
	return parsedURL, nil
}

// LogConfig represents slog configuration options
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Apply configures the global slog logger based on the configuration
func (logConfig *LogConfig) Apply() error {
	var level slog.Level
	switch strings.ToLower(logConfig.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return errors.New("invalid log level: " + logConfig.Level)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logConfig.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "plain", "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return errors.New("invalid log format: " + logConfig.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// TLSConfig holds client-side TLS settings for the catalog origin.
type TLSConfig struct {
	MinVersion         string `toml:"min_version,omitempty"`
	CACertFile         string `toml:"ca_cert_file,omitempty"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify,omitempty"`
}

func parseTLSVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, errors.New("unsupported min_version: " + v)
	}
}

// Validate checks the TLS settings without building them.
func (t *TLSConfig) Validate() error {
	if _, err := parseTLSVersion(t.MinVersion); err != nil {
		return err
	}
	if t.CACertFile != "" {
		if _, err := os.Stat(t.CACertFile); err != nil {
			return errors.New("cannot access ca_cert_file: " + err.Error())
		}
	}
	return nil
}

// BuildTLSConfig returns a *tls.Config for the HTTP transport.
func (t *TLSConfig) BuildTLSConfig() (*tls.Config, error) {
	minVersion, err := parseTLSVersion(t.MinVersion)
	if err != nil {
		return nil, err
	}

	// #nosec G402 - insecure_skip_verify is an explicit operator choice
	conf := &tls.Config{
		MinVersion:         minVersion,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}

	if t.CACertFile != "" {
		pem, err := os.ReadFile(t.CACertFile)
		if err != nil {
			return nil, errors.New("cannot read ca_cert_file: " + err.Error())
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no certificates found in ca_cert_file: " + t.CACertFile)
		}
		conf.RootCAs = pool
	}
	return conf, nil
}

// Config is a struct to read TOML configurations.
//
// Use https://github.com/BurntSushi/toml as follows:
//
//	config := mirror.NewConfig()
//	md, err := toml.DecodeFile("/path/to/appmirror.toml", config)
//	if err != nil {
//	    ...
//	}
type Config struct {
	PublicPath string    `toml:"public_path"`
	BaseURL    tomlURL   `toml:"base_url"`
	MaxConns   int       `toml:"max_conns"`
	UserAgent  string    `toml:"user_agent"`
	Color      bool      `toml:"color"`
	Log        LogConfig `toml:"log"`
	TLS        TLSConfig `toml:"tls"`
}

// NewConfig creates Config with default values.
func NewConfig() *Config {
	base, _ := parseBaseURL(defaultBaseURL)
	return &Config{
		PublicPath: defaultPublicPath,
		BaseURL:    tomlURL{base},
		MaxConns:   defaultMaxConns,
		Color:      true,
	}
}

// SetBaseURL replaces the base URL after validating it.
func (c *Config) SetBaseURL(s string) error {
	u, err := parseBaseURL(s)
	if err != nil {
		return err
	}
	c.BaseURL = tomlURL{u}
	return nil
}

// Check validates the configuration.
func (c *Config) Check() error {
	if c.PublicPath == "" {
		return errors.New("public_path is not set")
	}
	if c.BaseURL.URL == nil {
		return errors.New("base_url is not set")
	}
	if c.MaxConns < 1 {
		return errors.New("max_conns must be at least 1")
	}
	if err := c.TLS.Validate(); err != nil {
		return errors.New("tls: " + err.Error())
	}
	return nil
}

// Resolve returns *url.URL for a path relative to the base URL.
// p is parsed as a URL reference, so escapes and query strings
// in catalog identifiers are sent as written.
func (c *Config) Resolve(p string) (*url.URL, error) {
	ref, err := url.Parse(p)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %q", p)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, errors.Newf("resolve %q: not a relative path", p)
	}
	return c.BaseURL.ResolveReference(ref), nil
}
