package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "srafetch"

type Paths struct {
	ConfigDir string
	DataDir   string
	CacheDir  string
	StateDir  string
}

// GetPaths returns all base paths respecting environment variables
func GetPaths() Paths {
	return Paths{
		ConfigDir: getDir("SRAFETCH_CONFIG_HOME", "XDG_CONFIG_HOME", ".config"),
		DataDir:   getDir("SRAFETCH_DATA_HOME", "XDG_DATA_HOME", ".local/share"),
		CacheDir:  getDir("SRAFETCH_CACHE_HOME", "XDG_CACHE_HOME", ".cache"),
		StateDir:  getDir("SRAFETCH_STATE_HOME", "XDG_STATE_HOME", ".local/state"),
	}
}

func getDir(appEnv, xdgEnv, defaultBase string) string {
	if dir := os.Getenv(appEnv); dir != "" {
		return dir
	}
	if xdgBase := os.Getenv(xdgEnv); xdgBase != "" {
		return filepath.Join(xdgBase, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, defaultBase, appName)
}

// GetStorePath returns the path to the local metadata store.
func GetStorePath() string {
	if path := os.Getenv("SRAFETCH_DB_PATH"); path != "" {
		return path
	}
	return filepath.Join(GetPaths().DataDir, "srafetch.db")
}

// GetIndexPath returns the path to the search index, next to the store by
// default so both move together.
func GetIndexPath() string {
	if path := os.Getenv("SRAFETCH_INDEX_PATH"); path != "" {
		return path
	}
	dbPath := GetStorePath()
	dir := filepath.Dir(dbPath)
	name := filepath.Base(dbPath)
	name = name[:len(name)-len(filepath.Ext(name))]
	return filepath.Join(dir, name+".bleve")
}

// GetTempPath returns the scratch directory for sequence conversion.
func GetTempPath() string {
	if path := os.Getenv("SRAFETCH_TMPDIR"); path != "" {
		return path
	}
	return filepath.Join(GetPaths().CacheDir, "tmp")
}

// EnsureDirectories creates all necessary directories
func EnsureDirectories() error {
	p := GetPaths()
	dirs := []string{
		p.ConfigDir,
		p.DataDir,
		p.CacheDir,
		filepath.Join(p.CacheDir, "tmp"),
		p.StateDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
