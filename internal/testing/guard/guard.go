package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TESSERA_TEST_MODE") == "" {
			_ = os.Setenv("TESSERA_TEST_MODE", "1")
		}
	})
}
