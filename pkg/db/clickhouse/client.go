package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gramscope/gramscope/pkg/retry"
	"github.com/gramscope/gramscope/pkg/utils"
	"go.uber.org/zap"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Client wraps a ClickHouse connection scoped to one logical database.
type Client struct {
	Logger   *zap.Logger
	Db       driver.Conn
	Database string
}

const (
	MergeTree          = "MergeTree"
	ReplacingMergeTree = "ReplacingMergeTree"
)

// New initializes and returns a new ClickHouse client for the given database.
// The connection is established against the server's default database first so the
// target database can be created on demand by the store's InitializeDB.
func New(ctx context.Context, logger *zap.Logger, dbName string) (client Client, e error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	client.Logger = logger
	client.Database = dbName

	dsn := utils.Env("CLICKHOUSE_ADDR", "clickhouse://localhost:9000?sslmode=disable")
	username, password := extractCredentials(dsn)
	addrs := extractAddrs(dsn)

	options := &clickhouse.Options{
		Addr: addrs,
		Auth: clickhouse.Auth{
			Database: "default",
			Username: username,
			Password: password,
		},
		DialTimeout:     30 * time.Second,
		MaxOpenConns:    utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: time.Hour,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Settings: clickhouse.Settings{
			"prefer_column_name_to_alias": 1,
		},
	}

	err := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "clickhouse_connection", func() error {
		conn, err := clickhouse.Open(options)
		if err != nil {
			return fmt.Errorf("open clickhouse connection: %w", err)
		}

		if err := conn.Ping(connCtx); err != nil {
			return fmt.Errorf("ping clickhouse: %w", err)
		}

		client.Db = conn
		return nil
	})
	if err != nil {
		return Client{}, err
	}

	client.Logger.Info("ClickHouse connection ready",
		zap.String("database", dbName),
		zap.Strings("addrs", addrs),
	)
	return client, nil
}

// Exec executes a raw SQL statement.
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.Db.Exec(ctx, query, args...)
}

// QueryRow queries a single row.
func (c *Client) QueryRow(ctx context.Context, query string, args ...interface{}) driver.Row {
	return c.Db.QueryRow(ctx, query, args...)
}

// Select scans multiple rows into dest.
func (c *Client) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return c.Db.Select(ctx, dest, query, args...)
}

// PrepareBatch prepares a batch insert.
func (c *Client) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.Db.PrepareBatch(ctx, query)
}

// Close terminates the underlying connection.
func (c *Client) Close() error {
	return c.Db.Close()
}

// CreateDbIfNotExists creates the given database when missing.
func (c *Client) CreateDbIfNotExists(ctx context.Context, dbName string) error {
	return c.Exec(ctx, fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS "%s"`, dbName))
}

// Engine returns the engine clause for the given merge-tree family engine.
// For ReplacingMergeTree the version column controls row replacement on merge.
func Engine(engine, versionCol string) string {
	if versionCol != "" {
		return fmt.Sprintf("%s(%s)", engine, versionCol)
	}
	return engine
}

// SanitizeName sanitizes the provided database name to be compatible with ClickHouse.
func SanitizeName(id string) string {
	s := strings.ToLower(id)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	return s
}

// extractAddrs parses comma-separated host addresses from the DSN.
func extractAddrs(dsn string) []string {
	cleaned := strings.TrimPrefix(dsn, "clickhouse://")
	cleaned = strings.TrimPrefix(cleaned, "tcp://")

	hostPart := cleaned
	if idx := strings.Index(cleaned, "@"); idx != -1 {
		hostPart = cleaned[idx+1:]
	}
	if idx := strings.IndexAny(hostPart, "/?"); idx != -1 {
		hostPart = hostPart[:idx]
	}

	addrs := make([]string, 0, 1)
	for _, a := range strings.Split(hostPart, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return []string{"localhost:9000"}
	}
	return addrs
}

// extractCredentials extracts username and password from a DSN string.
func extractCredentials(dsn string) (string, string) {
	dsn = strings.TrimPrefix(dsn, "clickhouse://")
	dsn = strings.TrimPrefix(dsn, "tcp://")

	atIdx := strings.Index(dsn, "@")
	if atIdx == -1 {
		return "default", ""
	}

	credentials := dsn[:atIdx]
	colonIdx := strings.Index(credentials, ":")
	if colonIdx == -1 {
		return credentials, ""
	}
	return credentials[:colonIdx], credentials[colonIdx+1:]
}
