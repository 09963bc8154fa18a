package supervisor

import (
	"os"
	"path/filepath"
	"strconv"
)

// The pid files under the log dir are a debugging convention for operators
// ("one supervisor per machine"), not a lock. Both writes are best effort.

func writePIDFile(path string, pid int) {
	if path == "" || pid <= 0 {
		return
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o750)
	_ = os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600)
}

func removePIDFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
