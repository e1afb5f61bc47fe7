package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadNearestDotenv finds filename in the current directory or its parents and
// sets variables from it into the process environment.
//
// Existing environment variables are preserved and are not overwritten.
// It returns the path that was loaded, or "" when no file was found.
func LoadNearestDotenv(filename string) (string, error) {
	if filename == "" {
		filename = ".env"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	envPath, err := findFileUp(cwd, filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	if err := godotenv.Load(envPath); err != nil {
		return "", fmt.Errorf("load %s: %w", envPath, err)
	}
	return envPath, nil
}

func findFileUp(startDir, filename string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, filename)
		st, err := os.Stat(candidate)
		if err == nil && !st.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}
