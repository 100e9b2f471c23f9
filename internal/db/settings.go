package db

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/recipesnap/apiserver/config"
)

// Dialect identifies the SQL backend behind a connection string.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SSLMode is the transport security requested for postgres connections.
type SSLMode string

const (
	SSLOff        SSLMode = "off"
	SSLRequire    SSLMode = "require"
	SSLVerifyFull SSLMode = "verify-full"
)

// Settings is the validated, normalized form of config.DatabaseConfig.
type Settings struct {
	Dialect      Dialect
	DSN          string
	SSLMode      SSLMode
	CABundlePath string

	// InsecureTLS is set when the connection encrypts without verifying
	// the server certificate.
	InsecureTLS bool
}

// ErrInsecureTLS is returned when require is requested without a CA bundle
// and the insecure development opt-in is not in effect.
var ErrInsecureTLS = errors.New("sslmode require without a CA bundle does not verify the server")

// ResolveSettings normalizes the configured database location. env is the
// deployment environment; only "dev" may opt in to unverified TLS.
func ResolveSettings(cfg config.DatabaseConfig, env string) (Settings, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" && strings.TrimSpace(cfg.Host) != "" {
		raw = buildPostgresURL(cfg)
	}
	if raw == "" {
		path := strings.TrimSpace(cfg.SQLitePath)
		if path == "" {
			path = "recipes.db"
		}
		return Settings{Dialect: DialectSQLite, DSN: sqliteDSN(path), SSLMode: SSLOff}, nil
	}

	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "sqlite:") || strings.HasPrefix(lower, "file:") {
		dsn, err := sqliteFromURL(raw)
		if err != nil {
			return Settings{}, err
		}
		return Settings{Dialect: DialectSQLite, DSN: dsn, SSLMode: SSLOff}, nil
	}

	return resolvePostgres(raw, cfg, env)
}

func resolvePostgres(raw string, cfg config.DatabaseConfig, env string) (Settings, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Settings{}, fmt.Errorf("parse database url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch {
	case scheme == "postgres", scheme == "postgresql":
	case strings.HasPrefix(scheme, "postgresql+"), strings.HasPrefix(scheme, "postgres+"):
	default:
		return Settings{}, fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}
	u.Scheme = string(DialectPostgres)

	q := u.Query()

	rawMode := strings.TrimSpace(cfg.SSLMode)
	if rawMode == "" {
		rawMode = q.Get("sslmode")
	}
	mode, err := ParseSSLMode(rawMode)
	if err != nil {
		return Settings{}, err
	}

	caBundle := strings.TrimSpace(cfg.CABundlePath)
	if caBundle == "" {
		caBundle = q.Get("sslrootcert")
	}

	settings := Settings{Dialect: DialectPostgres, SSLMode: mode}

	switch mode {
	case SSLOff:
		q.Set("sslmode", "disable")
		q.Del("sslrootcert")
	case SSLRequire:
		if caBundle != "" {
			q.Set("sslmode", "verify-ca")
			q.Set("sslrootcert", caBundle)
			settings.CABundlePath = caBundle
			break
		}
		if !cfg.AllowInsecureTLS {
			return Settings{}, fmt.Errorf("%w: set DB_CA_BUNDLE or use verify-full", ErrInsecureTLS)
		}
		if env != "dev" {
			return Settings{}, fmt.Errorf("%w: DB_ALLOW_INSECURE_TLS is only honored when ENV=dev", ErrInsecureTLS)
		}
		q.Set("sslmode", "require")
		q.Del("sslrootcert")
		settings.InsecureTLS = true
	case SSLVerifyFull:
		q.Set("sslmode", "verify-full")
		if caBundle != "" {
			q.Set("sslrootcert", caBundle)
			settings.CABundlePath = caBundle
		}
	}

	u.RawQuery = q.Encode()
	settings.DSN = u.String()
	return settings, nil
}

// ParseSSLMode accepts the configured spellings plus the libpq names that
// can appear inside a URL.
func ParseSSLMode(raw string) (SSLMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "off", "disable", "false":
		return SSLOff, nil
	case "require", "verify-ca":
		return SSLRequire, nil
	case "verify-full", "verifyfull", "verify_full":
		return SSLVerifyFull, nil
	default:
		return "", fmt.Errorf("unsupported ssl mode %q", raw)
	}
}

func buildPostgresURL(cfg config.DatabaseConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:   url.UserPassword(cfg.User, cfg.Password),
		Path:   cfg.DBName,
	}
	return u.String()
}

// sqliteFromURL maps sqlite:///relative, sqlite:////absolute and file: URIs
// to a go-sqlite3 DSN.
func sqliteFromURL(raw string) (string, error) {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "file:") {
		return sqliteDSN(raw), nil
	}

	rest := raw[len("sqlite:"):]
	if strings.HasPrefix(rest, "//") {
		rest = strings.TrimPrefix(rest[2:], "/")
	}
	if strings.TrimSpace(rest) == "" {
		return "", errors.New("sqlite url has no path")
	}
	return sqliteDSN(rest), nil
}

// sqliteDSN enables foreign keys on every connection.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_foreign_keys") || strings.Contains(path, "_fk=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=1"
}
