package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("NEXUS_TEST_MODE") == "" {
			_ = os.Setenv("NEXUS_TEST_MODE", "1")
		}
	})
}
