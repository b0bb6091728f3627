package migrate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	migrationFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9]+(?:_[a-z0-9]+)*)\.sql$`)
	unsafeNameRe    = regexp.MustCompile(`[^a-z0-9]+`)

	// The same files run against sqlite on a device and postgres on a
	// collector, so statements only one of them understands are refused.
	nonPortableRe = regexp.MustCompile(`(?i)\b(SERIAL|BIGSERIAL|JSONB|TIMESTAMPTZ|AUTOINCREMENT|gen_random_uuid|ON CONFLICT ON CONSTRAINT)\b`)

	now = time.Now
)

// CreateSQLMigration writes an empty goose migration named
// <YYYYMMDDHHMMSS>_<name>.sql into dir and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	path := filepath.Join(dir, now().UTC().Format(versionLayout)+"_"+slug+".sql")
	body := strings.Join([]string{
		"-- +goose Up",
		"-- +goose StatementBegin",
		"-- " + slug + " (keep it portable: sqlite and postgres)",
		"-- +goose StatementEnd",
		"",
		"-- +goose Down",
		"-- +goose StatementBegin",
		"-- undo " + slug,
		"-- +goose StatementEnd",
		"",
	}, "\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// ValidateDir checks every .sql file in dir: naming, unique versions, an Up
// section before a Down section, balanced statement blocks and no
// dialect-specific syntax.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	names, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list %q: %w", dir, err)
	}
	sort.Strings(names)

	versions := make(map[string]string, len(names))
	for _, full := range names {
		name := filepath.Base(full)
		m := migrationFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("%s: expected YYYYMMDDHHMMSS_snake_name.sql", name)
		}
		if _, err := time.Parse(versionLayout, m[1]); err != nil {
			return fmt.Errorf("%s: version is not a timestamp", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("%s: version %s already used by %s", name, m[1], prev)
		}
		versions[m[1]] = name

		if err := checkMigrationBody(full); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func checkMigrationBody(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var upAt, downAt, open int
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "-- +goose Up":
			upAt = line
		case "-- +goose Down":
			downAt = line
		case "-- +goose StatementBegin":
			open++
		case "-- +goose StatementEnd":
			if open == 0 {
				return fmt.Errorf("line %d: StatementEnd without StatementBegin", line)
			}
			open--
		}
		if !strings.HasPrefix(text, "--") && nonPortableRe.MatchString(text) {
			return fmt.Errorf("line %d: non-portable SQL %q", line, nonPortableRe.FindString(text))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	switch {
	case upAt == 0:
		return fmt.Errorf(`missing "-- +goose Up"`)
	case downAt == 0:
		return fmt.Errorf(`missing "-- +goose Down"`)
	case downAt < upAt:
		return fmt.Errorf("down section precedes up")
	case open != 0:
		return fmt.Errorf("unterminated StatementBegin")
	}
	return nil
}
