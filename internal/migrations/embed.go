// Package migrations embeds the schema migration set and drives
// golang-migrate against it, so a deployed binary carries its own schema
// with no external file dependency. The same schema also ships as
// docker-entrypoint-initdb.d/schema.sql for test containers.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed sql/*.sql
var embedded embed.FS

// FS returns the embedded migration files rooted at "sql", the form
// golang-migrate's iofs source driver expects.
func FS() (fs.FS, error) {
	return fs.Sub(embedded, "sql")
}

// Files lists the embedded migration filenames, sorted, for diagnostics.
func Files() ([]string, error) {
	sub, err := FS()
	if err != nil {
		return nil, fmt.Errorf("migrations: sub filesystem: %w", err)
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: read embedded directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
