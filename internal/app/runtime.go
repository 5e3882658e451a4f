package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether binaries should skip network side effects. The
// flag is read once from ODYSSEY_TEST_MODE.
func InTestMode() bool {
	testModeOnce.Do(RefreshTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag after environment changes.
func RefreshTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}
