package integration

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"testing"
)

const binaryPath = "../cmd/bid-front/bid-front"

// TestMain builds the bid-front binary once for all tests
func TestMain(m *testing.M) {
	flag.Parse()

	fmt.Println("Building bid-front binary...")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, "../cmd/bid-front")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	if err := buildCmd.Run(); err != nil {
		fmt.Printf("Failed to build bid-front: %v\n", err)
		os.Exit(1)
	}

	logFile := "bid-front-test.log"
	os.Setenv("BID_FRONT_LOG_FILE", logFile)

	exitCode := m.Run()
	if exitCode != 0 {
		showTestFailureDiagnostics(logFile)
	}
	os.Exit(exitCode)
}

// showTestFailureDiagnostics prints the tail of the server log
func showTestFailureDiagnostics(logFile string) {
	fmt.Println("\n========== TEST FAILURE DIAGNOSTICS ==========")
	if _, err := os.Stat(logFile); err != nil {
		fmt.Println("No bid-front log file found")
		return
	}
	fmt.Println("\nbid-front logs (last 50 lines):")
	fmt.Println("----------------------------------------------")
	tailCmd := exec.Command("tail", "-50", logFile)
	tailCmd.Stdout = os.Stdout
	tailCmd.Stderr = os.Stderr
	_ = tailCmd.Run()
	fmt.Println("==============================================")
}
