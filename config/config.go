package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables consulted for flag defaults.
const (
	EnvLogLevel      = "LOG_LEVEL"
	EnvDockerHost    = "DOCKER_HOST"
	EnvResults       = "CLUSTERBENCH_RESULTS"
	EnvSSHHost       = "CLUSTERBENCH_SSH_HOST"
	EnvSSHUser       = "CLUSTERBENCH_SSH_USER"
	EnvSSHKey        = "CLUSTERBENCH_SSH_KEY"
	EnvSSHPort       = "CLUSTERBENCH_SSH_PORT"
	EnvMySQLPassword = "CLUSTERBENCH_MYSQL_PASSWORD"
	EnvHostIP        = "CLUSTERBENCH_HOST_IP"
)

// LoadDotEnv loads the given .env files into the process environment. Missing files are skipped and
// variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return fmt.Errorf("loading %s failed: %w", p, err)
		}
	}
	return nil
}

func StringEnv(key string, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func IntEnv(key string, def int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
