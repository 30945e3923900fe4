package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "WHOLESALE_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "wholesale")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("WHOLESALE_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("WHOLESALE_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from repo root, got %q", got)
	}
}

func TestStorageOptions_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		opts    StorageOptions
		wantErr bool
	}{
		{name: "local default", opts: StorageOptions{Backend: "local", LocalDir: "uploads"}},
		{name: "local upper case", opts: StorageOptions{Backend: " LOCAL ", LocalDir: "uploads"}},
		{name: "local without dir", opts: StorageOptions{Backend: "local"}, wantErr: true},
		{name: "s3 with bucket", opts: StorageOptions{Backend: "s3", S3Bucket: "imports"}},
		{name: "s3 without bucket", opts: StorageOptions{Backend: "s3"}, wantErr: true},
		{name: "unknown backend", opts: StorageOptions{Backend: "gcs"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			opts := tc.opts
			err := opts.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestWholesaleOptions_Validate(t *testing.T) {
	t.Parallel()

	ok := WholesaleOptions{ModelGroup: "core", M2MDelimiter: ";"}
	require.NoError(t, ok.Validate())

	noGroup := WholesaleOptions{ModelGroup: " ", M2MDelimiter: ","}
	require.Error(t, noGroup.Validate())

	quote := WholesaleOptions{ModelGroup: "core", M2MDelimiter: `"`}
	require.Error(t, quote.Validate())
}

func TestOutboxOptions_Validate(t *testing.T) {
	t.Parallel()

	ok := OutboxOptions{Table: "public.wholesale_outbox", BatchSize: 10, MaxAttempts: 3}
	require.NoError(t, ok.Validate())
	require.Equal(t, pgx.Identifier{"public", "wholesale_outbox"}, ok.Identifier)

	bad := OutboxOptions{Table: "a.b.c", BatchSize: 10, MaxAttempts: 3}
	require.Error(t, bad.Validate())

	zero := OutboxOptions{Table: "wholesale_outbox"}
	require.Error(t, zero.Validate())
}

func TestDatabaseOptions_ConnectionString(t *testing.T) {
	t.Parallel()

	d := DatabaseOptions{Name: "db", Host: "h", Port: "1", User: "u", Password: "p"}
	require.Equal(t, "host=h port=1 user=u dbname=db password=p sslmode=disable", d.ConnectionString())
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
