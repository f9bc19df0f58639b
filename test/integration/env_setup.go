//go:build integration

package integration

// Test environment setup and server lifecycle management.
//
// The integration tests start nfce-server in-process with a temporary database and fake upstream services
// (a TLS SOAP endpoint standing in for the authority and a plain HTTP portal).
// Each test creates an empty database and applies the embedded migrations; the database is dropped afterwards.
//
// The Postgres server is taken from TEST_DATABASE_URL (default postgres://nfce-dev@localhost:15433/postgres).
// Server logs are off unless ENABLE_SERVER_LOGS=true:
//
//	ENABLE_SERVER_LOGS=true go test -tags=integration -v ./test/integration

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/config"
	"github.com/information-sharing-networks/nfce-downloader/internal/database"
	"github.com/information-sharing-networks/nfce-downloader/internal/logger"
	"github.com/information-sharing-networks/nfce-downloader/internal/server"
	"github.com/jackc/pgx/v5/pgxpool"
)

const testDatabaseName = "tmp_nfce_e2e_test"

type testEnv struct {
	baseURL  string
	cfg      *config.Environment
	pool     *pgxpool.Pool
	queries  *database.Queries
	shutdown func()
}

// upstreamURLs are the fake services the server talks to
type upstreamURLs struct {
	soap   string
	portal string
}

func startInProcessServer(t *testing.T, upstream upstreamURLs) *testEnv {
	t.Helper()

	env := &testEnv{}
	port := findFreePort(t)

	logLevel := "none"
	if os.Getenv("ENABLE_SERVER_LOGS") == "true" {
		logLevel = "debug"
	}

	env.pool = setupTestDatabase(t)

	testEnvVars := map[string]string{
		"ENV_FILE":                   os.DevNull,
		"HOST":                       "localhost",
		"PORT":                       fmt.Sprintf("%d", port),
		"ENVIRONMENT":                "test",
		"LOG_LEVEL":                  logLevel,
		"RATE_LIMIT_RPS":             "0",
		"DATABASE_URL":               env.pool.Config().ConnString(),
		"SEFAZ_CONSULTA_URL":         upstream.soap,
		"SEFAZ_INSECURE_SKIP_VERIFY": "true",
		"PORTAL_BASE_URL":            upstream.portal,
		"UPSTREAM_TIMEOUT":           "5s",
		"BLOB_DIR":                   t.TempDir(),
	}
	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	cfg, err := config.NewServerConfig()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	env.cfg = cfg
	env.queries = database.New(env.pool)

	appLogger := logger.InitLogger(logger.ParseLogLevel(logLevel), "test")

	serverInstance, err := server.NewServer(env.pool, cfg, appLogger)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := serverInstance.Start(serverCtx); err != nil {
			serverDone <- err
		}
	}()

	env.shutdown = func() {
		serverCancel()
		select {
		case err := <-serverDone:
			if err != nil {
				t.Logf("server shutdown with error: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Log("server shutdown timeout")
		}
		serverInstance.DatabaseShutdown()
	}
	t.Cleanup(env.shutdown)

	env.baseURL = fmt.Sprintf("http://localhost:%d", port)
	if !waitForServer(t, env.baseURL+"/health/ready", 30*time.Second) {
		t.Fatal("Server failed to start within timeout")
	}
	return env
}

func findFreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func waitForServer(t *testing.T, url string, timeout time.Duration) bool {
	t.Helper()

	client := &http.Client{Timeout: 1 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// setupTestDatabase creates an empty database, applies the migrations and returns a pool connected to it.
// The pool is closed by the server's DatabaseShutdown.
func setupTestDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	serverURL := os.Getenv("TEST_DATABASE_URL")
	if serverURL == "" {
		serverURL = "postgres://nfce-dev@localhost:15433/postgres?sslmode=disable"
	}

	adminPool, err := pgxpool.New(ctx, serverURL)
	if err != nil {
		t.Fatalf("Unable to create postgres connection pool: %v", err)
	}
	if err := adminPool.Ping(ctx); err != nil {
		t.Fatalf("Can't ping PostgreSQL server: %v", err)
	}

	if _, err := adminPool.Exec(ctx, "DROP DATABASE IF EXISTS "+testDatabaseName); err != nil {
		t.Fatalf("DROP DATABASE IF EXISTS failed: %v", err)
	}
	if _, err := adminPool.Exec(ctx, "CREATE DATABASE "+testDatabaseName); err != nil {
		t.Fatalf("CREATE DATABASE failed: %v", err)
	}

	// registered first so it runs after the server shutdown
	t.Cleanup(func() {
		if _, err := adminPool.Exec(ctx, "DROP DATABASE IF EXISTS "+testDatabaseName+" WITH (FORCE)"); err != nil {
			t.Errorf("Failed to drop test database: %v", err)
		}
		adminPool.Close()
	})

	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("Failed to parse database URL: %v", err)
	}
	u.Path = "/" + testDatabaseName

	pool, err := pgxpool.New(ctx, u.String())
	if err != nil {
		t.Fatalf("Unable to create connection pool: %v", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("Failed to apply database migrations: %v", err)
	}
	return pool
}
