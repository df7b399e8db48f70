package docstore

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverBolt   = "bolt"
)

// Open returns the store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFile, "":
		return OpenFile(cfg.Path)
	case DriverBolt:
		return OpenBolt(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
