package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// readLocalFile loads KEY=VALUE lines where KEY is a secret reference, optionally carrying a
// version query. A missing file yields an empty set. Keys contain "://", which dotenv parsers
// split on, so the file is scanned by hand.
func readLocalFile(path string) (map[string]string, error) {
	values := make(map[string]string)
	if strings.TrimSpace(path) == "" {
		return values, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("secrets: %s:%d: expected KEY=VALUE", path, line)
		}
		ref, err := parseReference(key)
		if err != nil {
			return nil, fmt.Errorf("secrets: %s:%d: %w", path, line, err)
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		version := ref.version
		if version == "" {
			version = latestVersion
			values[ref.canonical] = value
		}
		values[cacheKey(ref.canonical, version)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", path, err)
	}
	return values, nil
}
