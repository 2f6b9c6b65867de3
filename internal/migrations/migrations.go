package migrations

import (
	"fmt"
	"os"
	"path/filepath"
)

// MigrationsDir points at the directory holding the schema files. Tests and
// packaged deployments can repoint it before the database is opened.
var MigrationsDir = "scripts/migrations"

const initialSchemaFile = "001_initial_schema.sql"

// GetInitialSchema loads the bootstrap schema. The file is resolved against
// the working directory first, then against the repository root so
// package-level tests find it without copying.
func GetInitialSchema() (string, error) {
	candidates := []string{
		filepath.Join(MigrationsDir, initialSchemaFile),
		filepath.Join("..", "..", MigrationsDir, initialSchemaFile),
		filepath.Join("..", MigrationsDir, initialSchemaFile),
	}

	for _, candidate := range candidates {
		if content, err := os.ReadFile(candidate); err == nil {
			return string(content), nil
		}
	}

	return "", fmt.Errorf("schema file %s not found under %s", initialSchemaFile, MigrationsDir)
}
