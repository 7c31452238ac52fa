// Package migrations embeds the PostgreSQL schema so that cmd/migrate and the
// integration tests apply the same files.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Up returns the names of the forward migrations in apply order.
func Up() ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the contents of the named migration.
func Read(name string) (string, error) {
	b, err := files.ReadFile(name)
	return string(b), err
}
