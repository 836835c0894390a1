package debug

import (
	"fmt"
	"os"
)

// StopEnv names the environment variable holding the stop point label.
const StopEnv = "DBCLONE_TEST_STOP"

// StopIf blocks indefinitely if DBCLONE_TEST_STOP equals label. It prints a
// marker line to stderr so integration tests can wait for the exact stop
// point (for example "after-create") before inspecting the server or sending
// signals.
func StopIf(label string) {
	if os.Getenv(StopEnv) != label {
		return
	}
	fmt.Fprintf(os.Stderr, "TEST_stop_point_%s\n", label)
	select {}
}
