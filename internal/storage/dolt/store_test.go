package dolt

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	script := "CREATE TABLE a (x TEXT DEFAULT 'a;b');\n-- note\nINSERT INTO a VALUES (\"c;d\");\nSELECT 1"
	got := splitStatements(script)
	want := []string{
		"CREATE TABLE a (x TEXT DEFAULT 'a;b')",
		"-- note\nINSERT INTO a VALUES (\"c;d\")",
		"SELECT 1",
	}
	if len(got) != len(want) {
		t.Fatalf("splitStatements() returned %d statements, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statement %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSchemaSplitsCleanly(t *testing.T) {
	stmts := splitStatements(schema)
	if len(stmts) != 4 {
		t.Fatalf("schema has %d statements, want 4", len(stmts))
	}
	for _, s := range stmts {
		if isOnlyComments(s) {
			t.Errorf("unexpected comment-only statement %q", s)
		}
	}
}

func TestIsOnlyComments(t *testing.T) {
	if !isOnlyComments("-- a\n  -- b\n") {
		t.Error("comment block not detected")
	}
	if isOnlyComments("-- a\nSELECT 1") {
		t.Error("statement with leading comment treated as comment-only")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("driver: bad connection"), true},
		{errors.New("dial tcp 127.0.0.1:3306: connect: connection refused"), true},
		{errors.New("Error 2006: MySQL server has gone away"), true},
		{errors.New("Error 1062: Duplicate entry"), false},
	}
	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsSerializationError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("commit: Error 1213: Deadlock found"), true},
		{fmt.Errorf("Error 1105: transaction commit conflict"), true},
		{fmt.Errorf("Error 1105: nothing to commit"), false},
	}
	for _, tt := range tests {
		if got := isSerializationError(tt.err); got != tt.want {
			t.Errorf("isSerializationError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestBuildServerDSN(t *testing.T) {
	cfg := &Config{ServerHost: "db", ServerPort: 3307, ServerUser: "fpw", ServerPassword: "pw", ServerTLS: true}
	if got, want := buildServerDSN(cfg, "fpw"), "fpw:pw@tcp(db:3307)/fpw?parseTime=true&tls=true"; got != want {
		t.Errorf("buildServerDSN() = %q, want %q", got, want)
	}
	cfg = &Config{ServerHost: "db", ServerPort: 3306, ServerUser: "root"}
	if got, want := buildServerDSN(cfg, ""), "root@tcp(db:3306)/?parseTime=true"; got != want {
		t.Errorf("buildServerDSN() = %q, want %q", got, want)
	}
}

func TestValidateDatabaseName(t *testing.T) {
	for _, name := range []string{"fpw", "fpw_test", "_x", "a-b"} {
		if err := validateDatabaseName(name); err != nil {
			t.Errorf("validateDatabaseName(%q) = %v", name, err)
		}
	}
	for _, name := range []string{"", "1abc", "a`b", "drop table;"} {
		if err := validateDatabaseName(name); err == nil {
			t.Errorf("validateDatabaseName(%q) = nil, want error", name)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv("GIT_AUTHOR_NAME", "")
	t.Setenv("GIT_AUTHOR_EMAIL", "")
	t.Setenv("FPW_DOLT_PASSWORD", "from-env")
	cfg := &Config{}
	cfg.applyDefaults()
	if cfg.Database != "fpw" || cfg.ServerPort != 3306 || cfg.ServerUser != "root" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.ServerPassword != "from-env" {
		t.Errorf("ServerPassword = %q, want from-env", cfg.ServerPassword)
	}
	if cfg.CommitterName != "fpw" {
		t.Errorf("CommitterName = %q, want fpw", cfg.CommitterName)
	}
}

func TestCommitFailureIsLoggedNotReturned(t *testing.T) {
	db, err := sql.Open("mysql", "root@tcp(127.0.0.1:1)/fpw")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	_ = db.Close()

	var buf bytes.Buffer
	s := &DoltStore{
		db:         db,
		autoCommit: true,
		log:        slog.New(slog.NewTextHandler(&buf, nil)),
	}
	s.commit(context.Background(), "plan: update p1")

	out := buf.String()
	if !strings.Contains(out, "dolt commit failed after write") || !strings.Contains(out, "plan: update p1") {
		t.Errorf("commit failure not logged: %q", out)
	}

	buf.Reset()
	s.autoCommit = false
	s.commit(context.Background(), "plan: update p1")
	if buf.Len() != 0 {
		t.Errorf("commit ran with autoCommit off: %q", buf.String())
	}
}
