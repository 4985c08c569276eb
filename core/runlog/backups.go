package runlog

import (
	"path/filepath"
	"strings"
)

// backups returns path and the files lumberjack rotated it into, which are
// named <name>-<timestamp><ext>.
func backups(path string) ([]string, error) {
	ext := filepath.Ext(path)
	prefix := strings.TrimSuffix(path, ext)
	rotated, err := filepath.Glob(prefix + "-*" + ext)
	if err != nil {
		return nil, err
	}
	return append(rotated, path), nil
}
