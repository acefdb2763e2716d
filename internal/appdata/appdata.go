package appdata

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

const EnvDataDir = "RECIPES_DATA_DIR"

var (
	once    sync.Once
	dataDir string
)

// Dir returns the directory where the node keeps its peer book.
//
// Precedence:
//  1. RECIPES_DATA_DIR env var (absolute or relative)
//  2. If running via `go run` (temp go-build path), use the current working directory
//  3. Directory of the executable
//
// The returned directory is created if it does not exist.
func Dir() string {
	once.Do(func() {
		dataDir = resolve(os.Getenv(EnvDataDir), os.Executable, os.Getwd)
		_ = os.MkdirAll(dataDir, 0o700)
	})
	return dataDir
}

func resolve(env string, exe func() (string, error), wd func() (string, error)) string {
	if v := strings.TrimSpace(env); v != "" {
		return filepath.Clean(v)
	}

	base := cwd(wd)
	if path, err := exe(); err == nil {
		path = filepath.Clean(path)
		if !looksLikeGoRunTempBinary(path) {
			base = filepath.Dir(path)
		}
	}
	return filepath.Join(base, ".recipe-swap")
}

func cwd(wd func() (string, error)) string {
	d, err := wd()
	if err != nil {
		return "."
	}
	return d
}

func looksLikeGoRunTempBinary(exe string) bool {
	lower := strings.ToLower(exe)
	if strings.Contains(lower, string(filepath.Separator)+"go-build") {
		return true
	}
	if runtime.GOOS == "windows" {
		return strings.Contains(lower, "\\go-build")
	}
	return false
}
