package progress

import (
	"context"
	"fmt"
	"path/filepath"
)

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver     string
	DataDir    string
	SQLitePath string // defaults to <DataDir>/progress.db
	Namespace  string
	Redis      RedisOptions
}

// Open creates the configured backend, wrapped with the namespace prefix.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)

	switch opts.Driver {
	case DriverFile, "":
		s, err = NewFileStore(opts.DataDir)
	case DriverSQLite:
		p := opts.SQLitePath
		if p == "" {
			p = filepath.Join(opts.DataDir, "progress.db")
		}
		s, err = NewSQLiteStore(p)
	case DriverRedis:
		s, err = NewRedisStore(ctx, opts.Redis)
	case DriverMemory:
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown progress store driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return WithPrefix(s, opts.Namespace), nil
}
