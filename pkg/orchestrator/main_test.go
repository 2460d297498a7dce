package orchestrator

import (
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
)

var (
	verbose = flag.Bool("verbose", false, "Log test cycles to stdout")

	testLogger logger.Logger = &logger.EmptyLogger{}
)

// TestMain picks the logger used by every orchestrator under test
func TestMain(m *testing.M) {
	flag.Parse()
	if *verbose {
		testLogger = logger.NewStdLogger(false, logger.DebugLevel)
	}

	start := time.Now()
	exitCode := m.Run()
	if *verbose {
		fmt.Printf("orchestrator tests completed in %v\n", time.Since(start))
	}
	os.Exit(exitCode)
}
