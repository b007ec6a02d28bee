// Package slot opens the persistent slot backend selected by configuration.
package slot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/storage/slot/jsonfile"
	"github.com/trezcool/maktaba/storage/slot/memory"
	"github.com/trezcool/maktaba/storage/slot/postgres"
	"github.com/trezcool/maktaba/storage/slot/sqlite"
)

const (
	BackendMemory   = "memory"
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open returns the slot backend named by conf.Storage.Backend.
func Open(conf *core.Config, logger core.Logger) (store.Slot, error) {
	quota, err := store.ParseQuota(conf.Storage.Quota)
	if err != nil {
		return nil, err
	}

	switch conf.Storage.Backend {
	case BackendMemory, "":
		return memory.New(quota), nil
	case BackendJSON:
		s, err := jsonfile.New(conf.Storage.DataDir, quota, logger)
		if err != nil {
			return nil, errors.Wrap(err, "opening json slots")
		}
		return s, nil
	case BackendSQLite:
		if err := os.MkdirAll(conf.Storage.DataDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating data dir")
		}
		s, err := sqlite.Open(filepath.Join(conf.Storage.DataDir, conf.Storage.Namespace+".db"), quota)
		if err != nil {
			return nil, errors.Wrap(err, "opening sqlite slots")
		}
		return s, nil
	case BackendPostgres:
		s, err := postgres.Open(conf, quota, logger)
		if err != nil {
			return nil, errors.Wrap(err, "opening postgres slots")
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}
}
