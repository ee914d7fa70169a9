package integration

import (
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

const (
	testAddr    = "127.0.0.1:18080"
	testBaseURL = "http://" + testAddr
)

// noRedirectClient returns redirects to the test instead of following them
var noRedirectClient = &http.Client{
	Timeout: 10 * time.Second,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

// startBidFront starts the bid-front binary with env layered over the
// process environment and stops it when the test ends
func startBidFront(t *testing.T, env ...string) {
	t.Helper()
	cmd := exec.Command(binaryPath)

	cmd.Env = append(os.Environ(),
		"BID_FRONT_ADDR="+testAddr,
		"BID_FRONT_ENV=development",
	)
	cmd.Env = append(cmd.Env, env...)

	if logFile := os.Getenv("BID_FRONT_LOG_FILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			cmd.Stderr = f
			cmd.Stdout = f
			t.Cleanup(func() { f.Close() })
		}
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start bid-front: %v", err)
	}
	t.Cleanup(func() {
		stopBidFront(cmd)
	})

	waitForBidFront(t)
}

// stopBidFront stops the server gracefully, killing it after 5 seconds
func stopBidFront(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// waitForBidFront polls the health endpoint until the server answers
func waitForBidFront(t *testing.T) {
	t.Helper()
	for range 50 {
		resp, err := http.Get(testBaseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("bid-front failed to become ready after 5 seconds")
}

func responseCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
