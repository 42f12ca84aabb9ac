// Package dolt implements the storage interface using Dolt (versioned
// MySQL-compatible database).
//
// Connection modes:
//   - Embedded: no server required, database/sql via dolthub/driver (CGO only)
//   - Server: connect to a running dolt sql-server over the MySQL protocol
//
// With AutoCommit enabled every write is followed by a Dolt commit, so the
// full history of each plan can be inspected with dolt log / AS OF queries.
package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	// Import MySQL driver for server mode connections
	_ "github.com/go-sql-driver/mysql"

	"github.com/fpw-project/fpw/internal/storage"
)

// DoltStore implements the Storage interface using Dolt
type DoltStore struct {
	db         *sql.DB
	dbPath     string       // Path to Dolt database directory (embedded mode)
	closed     atomic.Bool  // Tracks whether Close() has been called
	mu         sync.RWMutex // Protects db against Close
	serverMode bool         // True if connected to dolt sql-server (vs embedded)
	autoCommit bool         // Dolt commit after every write

	// connector is non-nil only in embedded mode. It must be closed to
	// release filesystem locks held by the embedded engine.
	connector io.Closer

	committerName  string
	committerEmail string

	log *slog.Logger // nil means slog.Default()
}

var _ storage.Storage = (*DoltStore)(nil)

// Config holds Dolt database configuration
type Config struct {
	Path           string // Path to Dolt database directory (embedded mode)
	Database       string // Database name within Dolt (default: "fpw")
	CommitterName  string // Dolt committer name
	CommitterEmail string // Dolt committer email
	AutoCommit     bool   // Dolt commit after every write

	// Server mode options
	ServerMode     bool   // Connect to dolt sql-server instead of embedded
	ServerHost     string // Server host (default: 127.0.0.1)
	ServerPort     int    // Server port (default: 3306)
	ServerUser     string // MySQL user (default: root)
	ServerPassword string // MySQL password (can be set via FPW_DOLT_PASSWORD)
	ServerTLS      bool   // Enable TLS for server connections
}

func (cfg *Config) applyDefaults() {
	if cfg.Database == "" {
		cfg.Database = "fpw"
	}
	if cfg.CommitterName == "" {
		cfg.CommitterName = os.Getenv("GIT_AUTHOR_NAME")
		if cfg.CommitterName == "" {
			cfg.CommitterName = "fpw"
		}
	}
	if cfg.CommitterEmail == "" {
		cfg.CommitterEmail = os.Getenv("GIT_AUTHOR_EMAIL")
		if cfg.CommitterEmail == "" {
			cfg.CommitterEmail = "fpw@localhost"
		}
	}
	if cfg.ServerHost == "" {
		cfg.ServerHost = "127.0.0.1"
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = 3306
	}
	if cfg.ServerUser == "" {
		cfg.ServerUser = "root"
	}
	if cfg.ServerPassword == "" {
		cfg.ServerPassword = os.Getenv("FPW_DOLT_PASSWORD")
	}
}

// Server mode retry configuration.
// go-sql-driver/mysql has no built-in retry, so transient connection errors
// (stale pool connections, brief network issues, server restarts) are
// retried here.
const serverRetryMaxElapsed = 30 * time.Second

func newServerRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// isRetryableError returns true if the error is a transient connection error
// that should be retried in server mode.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused", // server restart
		"database is read only",
		"lost connection", // MySQL 2013
		"gone away",       // MySQL 2006
		"i/o timeout",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// isSerializationError reports whether a transaction failed because of a
// concurrent writer and may be rerun.
func isSerializationError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "nothing to commit") {
		return false
	}
	return strings.Contains(errStr, "error 1213") ||
		strings.Contains(errStr, "deadlock") ||
		strings.Contains(errStr, "serialization failure") ||
		(strings.Contains(errStr, "error 1105") && strings.Contains(errStr, "conflict"))
}

// withRetry executes an operation with retry for transient errors.
// Only active in server mode; embedded mode has driver-level retry.
func (s *DoltStore) withRetry(ctx context.Context, op func() error) error {
	if !s.serverMode {
		return op()
	}

	bo := newServerRetryBackoff()
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err // Retryable - backoff will retry
		}
		if err != nil {
			return backoff.Permanent(err) // Non-retryable - stop immediately
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// execContext wraps s.db.ExecContext with server-mode retry for transient errors.
func (s *DoltStore) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return result, err
}

// queryContext wraps s.db.QueryContext with server-mode retry for transient errors.
func (s *DoltStore) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

// runInTx runs fn in a transaction. Serialization conflicts rerun the whole
// transaction with exponential backoff.
func (s *DoltStore) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(func() error {
		err := s.withRetry(ctx, func() error { return s.txOnce(ctx, fn) })
		if err != nil && isSerializationError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

func (s *DoltStore) txOnce(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// New opens a Dolt store in the mode selected by cfg and initializes the
// schema.
func New(ctx context.Context, cfg *Config) (*DoltStore, error) {
	cfg.applyDefaults()
	if err := validateDatabaseName(cfg.Database); err != nil {
		return nil, fmt.Errorf("invalid database name %q: %w", cfg.Database, err)
	}
	if !cfg.ServerMode {
		return newEmbeddedMode(ctx, cfg)
	}

	db, err := openServerConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := &DoltStore{
		db:             db,
		serverMode:     true,
		autoCommit:     cfg.AutoCommit,
		committerName:  cfg.CommitterName,
		committerEmail: cfg.CommitterEmail,
	}
	if err := store.withRetry(ctx, func() error { return initSchemaOnDB(ctx, db) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

var databaseNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]{0,63}$`)

// validateDatabaseName guards the one place a name is interpolated into SQL.
func validateDatabaseName(name string) error {
	if !databaseNameRe.MatchString(name) {
		return errors.New("must start with a letter or underscore and contain only letters, digits, '_' or '-'")
	}
	return nil
}

// buildServerDSN constructs a MySQL DSN for connecting to a Dolt server.
// If database is empty, connects without selecting a database (for init operations).
func buildServerDSN(cfg *Config, database string) string {
	userPart := cfg.ServerUser
	if cfg.ServerPassword != "" {
		userPart = fmt.Sprintf("%s:%s", cfg.ServerUser, cfg.ServerPassword)
	}

	params := "parseTime=true"
	if cfg.ServerTLS {
		params += "&tls=true"
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s", userPart, cfg.ServerHost, cfg.ServerPort, database, params)
}

// openServerConnection opens a connection to a dolt sql-server via MySQL protocol
func openServerConnection(ctx context.Context, cfg *Config) (*sql.DB, error) {
	// Ensure database exists; connect without one first.
	initDB, err := sql.Open("mysql", buildServerDSN(cfg, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to open init connection: %w", err)
	}
	defer func() { _ = initDB.Close() }()

	_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database)) //nolint:gosec // G201: validated by validateDatabaseName
	if err != nil {
		errLower := strings.ToLower(err.Error())
		// Dolt may return error 1007 even with IF NOT EXISTS
		if !strings.Contains(errLower, "database exists") && !strings.Contains(errLower, "1007") {
			if strings.Contains(errLower, "connection refused") {
				return nil, fmt.Errorf("failed to connect to Dolt server at %s:%d: %w\n\nThe Dolt server may not be running. Try:\n  dolt sql-server  # in the database directory",
					cfg.ServerHost, cfg.ServerPort, err)
			}
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	db, err := sql.Open("mysql", buildServerDSN(cfg, cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to open Dolt server connection: %w", err)
	}
	// Server mode supports multi-writer, configure reasonable pool size
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// initSchemaOnDB creates all tables if they don't exist.
func initSchemaOnDB(ctx context.Context, db *sql.DB) error {
	// Fast path: schema already current.
	var version int
	err := db.QueryRowContext(ctx, "SELECT `value` FROM config WHERE `key` = 'schema_version'").Scan(&version)
	if err == nil && version >= currentSchemaVersion {
		return nil
	}

	// MySQL/Dolt doesn't support multiple statements in one Exec
	for _, stmt := range splitStatements(schema) {
		if isOnlyComments(stmt) {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w\nStatement: %s", err, truncateForError(stmt))
		}
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO config (`key`, `value`) VALUES ('schema_version', ?) "+
			"ON DUPLICATE KEY UPDATE `value` = ?",
		currentSchemaVersion, currentSchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// splitStatements splits a SQL script into individual statements
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(script); i++ {
		c := script[i]

		if inString {
			current.WriteByte(c)
			if c == stringChar && (i == 0 || script[i-1] != '\\') {
				inString = false
			}
			continue
		}

		if c == '\'' || c == '"' || c == '`' {
			inString = true
			stringChar = c
			current.WriteByte(c)
			continue
		}

		if c == ';' {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}

		current.WriteByte(c)
	}

	// Handle last statement without semicolon
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

// truncateForError truncates a string for use in error messages
func truncateForError(s string) string {
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}

// isOnlyComments returns true if the statement contains only SQL comments
func isOnlyComments(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}

// commit records a Dolt commit when auto-commit is on. An empty working set
// is not an error.
// commit records a Dolt commit after a write. The write is already in the
// working set; a failed commit is only logged and the next one picks it up.
func (s *DoltStore) commit(ctx context.Context, message string) {
	if !s.autoCommit {
		return
	}
	if err := s.Commit(ctx, message); err != nil {
		s.logger().Warn("dolt commit failed after write", "message", message, "error", err)
	}
}

func (s *DoltStore) logger() *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return slog.Default()
}

// Commit creates a Dolt commit with the given message.
func (s *DoltStore) Commit(ctx context.Context, message string) error {
	author := fmt.Sprintf("%s <%s>", s.committerName, s.committerEmail)
	_, err := s.execContext(ctx, "CALL DOLT_COMMIT('-Am', ?, '--author', ?)", message, author)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "nothing to commit") {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *DoltStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	// Embedded mode: close the engine to release filesystem locks.
	if s.connector != nil {
		if cerr := s.connector.Close(); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = errors.Join(err, cerr)
		}
		s.connector = nil
	}
	s.db = nil
	return err
}

// Path returns the database directory path (empty in server mode).
func (s *DoltStore) Path() string {
	return s.dbPath
}

// UnderlyingDB returns the underlying *sql.DB connection
func (s *DoltStore) UnderlyingDB() *sql.DB {
	return s.db
}
