package integration

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgImage    = "postgres:16-alpine"
	pgUser     = "lims"
	pgPassword = "lims"
	pgDatabase = "lims_test"
)

// startPostgres launches a throwaway Postgres via the Docker CLI and
// returns its connection string plus a teardown func. TEST_DATABASE_URL
// overrides the container entirely, for running the suite against an
// already provisioned database.
func startPostgres(ctx context.Context) (string, func(), error) {
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url, func() {}, nil
	}

	port, err := freePort()
	if err != nil {
		return "", nil, fmt.Errorf("reserve port: %w", err)
	}
	name := fmt.Sprintf("lims-test-pg-%d", port)

	// A stale container from an aborted run would hold the name.
	exec.CommandContext(ctx, "docker", "rm", "-f", name).Run()

	args := []string{
		"run", "-d", "--rm",
		"--name", name,
		"-p", fmt.Sprintf("%d:5432", port),
		"-e", "POSTGRES_USER=" + pgUser,
		"-e", "POSTGRES_PASSWORD=" + pgPassword,
		"-e", "POSTGRES_DB=" + pgDatabase,
		"--tmpfs", "/var/lib/postgresql/data",
		pgImage,
	}
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("docker run: %w\n%s", err, out)
	}
	id := strings.TrimSpace(string(out))
	teardown := func() {
		exec.Command("docker", "rm", "-f", id).Run()
	}

	url := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		pgUser, pgPassword, port, pgDatabase)
	if err := awaitReady(ctx, url, 30*time.Second); err != nil {
		teardown()
		return "", nil, err
	}
	return url, teardown, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// awaitReady polls until the database accepts a ping. Postgres restarts
// once during initdb, so a single successful TCP connect is not enough.
func awaitReady(ctx context.Context, url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		tryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		pool, err := pgxpool.New(tryCtx, url)
		if err == nil {
			err = pool.Ping(tryCtx)
			pool.Close()
		}
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("postgres not ready within %v", timeout)
}
