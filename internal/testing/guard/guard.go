package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("AGRIGATE_TEST_MODE") == "" {
			_ = os.Setenv("AGRIGATE_TEST_MODE", "1")
		}
	})
}
