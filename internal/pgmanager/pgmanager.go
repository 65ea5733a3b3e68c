// Package pgmanager runs a local PostgreSQL for development when no
// database URL is configured.
package pgmanager

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
)

const (
	defaultPort = 15433
	dbUser      = "servetable"
	dbPassword  = "servetable"
	dbName      = "servetable"
)

// Config controls the managed instance.
type Config struct {
	Port       uint32 // 0 means 15433
	DataDir    string // "" means ~/.servetable/data
	RuntimeDir string // "" means ~/.servetable/run; also holds the pid file
	Logger     *slog.Logger
}

// Manager owns one embedded PostgreSQL process.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	db      *embeddedpostgres.EmbeddedPostgres
	connURL string
	pidPath string
}

// New returns a manager. Nothing is started until Start.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	return &Manager{cfg: cfg}
}

// Start boots PostgreSQL and returns its connection URL. A stale server left
// behind by a crashed run is stopped first.
func (m *Manager) Start(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return m.connURL, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	home, err := servetableHome()
	if err != nil {
		return "", err
	}
	dataDir := m.cfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(home, "data")
	}
	runtimeDir := m.cfg.RuntimeDir
	if runtimeDir == "" {
		runtimeDir = filepath.Join(home, "run")
	}
	cacheDir := filepath.Join(home, "pg")
	for _, dir := range []string{runtimeDir, cacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	m.pidPath = filepath.Join(runtimeDir, "postgres.pid")
	cleanupOrphan(m.pidPath, m.cfg.Logger)

	db := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Port(m.cfg.Port).
		DataPath(dataDir).
		RuntimePath(runtimeDir).
		CachePath(cacheDir).
		Logger(newLogWriter(m.cfg.Logger)).
		Version(embeddedpostgres.V16).
		Username(dbUser).
		Password(dbPassword).
		Database(dbName))

	m.cfg.Logger.Info("starting managed postgres", "port", m.cfg.Port, "data_dir", dataDir)
	if err := db.Start(); err != nil {
		return "", fmt.Errorf("starting embedded postgres: %w", err)
	}

	if pid, err := readPostmasterPID(filepath.Join(dataDir, "postmaster.pid")); err == nil && pid > 0 {
		if err := writePID(m.pidPath, pid); err != nil {
			m.cfg.Logger.Warn("could not record postgres pid", "error", err)
		}
	}

	m.db = db
	m.connURL = fmt.Sprintf("postgresql://%s:%s@127.0.0.1:%d/%s?sslmode=disable",
		dbUser, dbPassword, m.cfg.Port, dbName)
	return m.connURL, nil
}

// Stop shuts PostgreSQL down. It is a no-op when nothing is running.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Stop()
	m.db = nil
	m.connURL = ""
	if rerr := removePID(m.pidPath); rerr != nil {
		m.cfg.Logger.Warn("could not remove postgres pid file", "error", rerr)
	}
	if err != nil {
		return fmt.Errorf("stopping embedded postgres: %w", err)
	}
	m.cfg.Logger.Info("managed postgres stopped")
	return nil
}

// IsRunning reports whether Start has succeeded and Stop has not been called.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db != nil
}

// ConnURL returns the URL of the running instance, or "".
func (m *Manager) ConnURL() string {
	return m.connURL
}

func servetableHome() (string, error) {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	dir := filepath.Join(userHome, ".servetable")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

func writePID(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// readPID returns 0 when the file does not exist.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// readPostmasterPID reads the server pid from the first line of postmaster.pid.
func readPostmasterPID(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, fmt.Errorf("%s is empty", path)
	}
	return strconv.Atoi(strings.TrimSpace(sc.Text()))
}

// cleanupOrphan terminates a postgres left running by a previous process
// and removes its pid file.
func cleanupOrphan(pidPath string, logger *slog.Logger) {
	pid, err := readPID(pidPath)
	if err != nil || pid <= 0 {
		if err != nil {
			logger.Warn("unreadable postgres pid file", "path", pidPath, "error", err)
			_ = removePID(pidPath)
		}
		return
	}
	if proc, err := os.FindProcess(pid); err == nil && proc.Signal(syscall.Signal(0)) == nil {
		logger.Warn("stopping orphaned managed postgres", "pid", pid)
		_ = proc.Signal(syscall.SIGTERM)
	}
	_ = removePID(pidPath)
}

// logWriter forwards postgres output to slog at debug level, one record per line.
type logWriter struct {
	logger *slog.Logger
}

func newLogWriter(logger *slog.Logger) *logWriter {
	return &logWriter{logger: logger}
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(p, []byte("\n")) {
		if line = bytes.TrimSpace(line); len(line) > 0 {
			w.logger.Debug("postgres", "line", string(line))
		}
	}
	return len(p), nil
}
