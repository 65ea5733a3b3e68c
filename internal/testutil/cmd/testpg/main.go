// Command testpg runs a command against a throwaway PostgreSQL.
//
// It boots the same managed server as `servetable start` on a free port with
// a temporary data directory, exports TEST_DATABASE_URL, runs the command
// and stops the server when the command exits or the process is signalled.
//
//	go run ./internal/testutil/cmd/testpg -- go test -tags=integration -count=1 ./...
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/servetable/servetable/internal/pgmanager"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: testpg [--] <command> [args...]")
		return 2
	}

	port, err := freePort()
	if err != nil {
		return fail("finding free port", err)
	}
	scratch, err := os.MkdirTemp("", "servetable-testpg-*")
	if err != nil {
		return fail("creating scratch dir", err)
	}
	defer os.RemoveAll(scratch)

	// Server output stays out of the test log unless TESTPG_VERBOSE is set.
	var logOut io.Writer = io.Discard
	if os.Getenv("TESTPG_VERBOSE") != "" {
		logOut = os.Stderr
	}
	mgr := pgmanager.New(pgmanager.Config{
		Port:       uint32(port),
		DataDir:    filepath.Join(scratch, "data"),
		RuntimeDir: filepath.Join(scratch, "run"),
		Logger:     slog.New(slog.NewTextHandler(logOut, nil)),
	})

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	url, err := mgr.Start(context.Background())
	if err != nil {
		return fail("starting postgres", err)
	}
	defer func() {
		if err := mgr.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "testpg: %v\n", err)
		}
	}()
	fmt.Fprintf(os.Stderr, "testpg: TEST_DATABASE_URL=%s\n", url)

	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = append(os.Environ(), "TEST_DATABASE_URL="+url)
	// Own process group, so a forwarded signal reaches go test's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return fail("starting command", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return exitCode(err)
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "\ntestpg: %s, stopping %s\n", sig, args[0])
		_ = syscall.Kill(-cmd.Process.Pid, sig.(syscall.Signal))
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "testpg: forced exit")
			_ = mgr.Stop()
			os.Exit(1)
		}()
		<-done
		return 128 + int(sig.(syscall.Signal))
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return fail("running command", err)
}

func fail(what string, err error) int {
	fmt.Fprintf(os.Stderr, "testpg: %s: %v\n", what, err)
	return 1
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
