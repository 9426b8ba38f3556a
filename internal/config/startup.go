package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/TheGojiOG/vuserver/internal/rcon"
)

// AdminPasswordKey is the Startup.txt key holding the RCON password.
const AdminPasswordKey = "admin.password"

// StartupConfig is the parsed key/value content of Startup.txt.
type StartupConfig map[string]string

// AdminPassword returns the RCON password and whether it is set.
func (s StartupConfig) AdminPassword() (string, bool) {
	pwd, ok := s[AdminPasswordKey]
	return pwd, ok
}

// LoadStartup parses a Startup.txt file. Lines starting with '#' and lines
// with fewer than two words are skipped. Quotes are stripped from values and
// the last occurrence of a key wins.
func LoadStartup(path string) (StartupConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open startup config: %w", err)
	}
	defer file.Close()

	cfg := make(StartupConfig)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "#") {
			continue
		}

		words := rcon.SplitWords(line)
		if len(words) < 2 {
			continue
		}
		cfg[words[0]] = rcon.Unquote(words[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read startup config: %w", err)
	}

	return cfg, nil
}
