// Package guard switches the binaries into test mode when imported from a
// test, so calling main() returns before dialing Postgres, Redis or the
// backend.
package guard

import (
	"os"
	"sync"
)

// Env is the variable read by app.InTestMode.
const Env = "LOCADORA_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
