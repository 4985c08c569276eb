package runlog

import "fmt"

// Backends accepted by Open.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Rotation configures JSONL file rotation. A zero MaxSizeMB disables it.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Open returns the store for backend at path.
func Open(backend, path string, rot Rotation) (Store, error) {
	switch backend {
	case BackendJSONL, "":
		if rot.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(path, rot.MaxSizeMB, rot.MaxBackups, rot.MaxAgeDays)
		}
		return NewJSONLStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown run log backend %q", backend)
	}
}
