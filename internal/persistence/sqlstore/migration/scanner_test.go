package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestScanner_ScanMigrations(t *testing.T) {
	files := fstest.MapFS{
		"010_add_index.sql":   {Data: []byte("CREATE INDEX idx_a ON a (id);")},
		"002_create_b.sql":    {Data: []byte("-- Description: Create table b\nCREATE TABLE b (id TEXT);")},
		"001_create_a.sql":    {Data: []byte("CREATE TABLE a (id TEXT);")},
		"README.md":           {Data: []byte("ignored")},
		"nested/003_skip.sql": {Data: []byte("CREATE TABLE c (id TEXT);")},
	}

	migrations, err := NewScanner(files).ScanMigrations()
	if err != nil {
		t.Fatalf("ScanMigrations failed: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("Expected 3 migrations, got %d", len(migrations))
	}

	wantVersions := []string{"001", "002", "010"}
	for i, want := range wantVersions {
		if migrations[i].Version != want {
			t.Errorf("Expected version %s at %d, got %s", want, i, migrations[i].Version)
		}
	}
	if migrations[0].Description != "create a" {
		t.Errorf("Expected description from filename, got %q", migrations[0].Description)
	}
	if migrations[1].Description != "Create table b" {
		t.Errorf("Expected description from header, got %q", migrations[1].Description)
	}
	if migrations[0].Checksum == "" || migrations[0].Checksum == migrations[1].Checksum {
		t.Errorf("Expected distinct checksums, got %q and %q", migrations[0].Checksum, migrations[1].Checksum)
	}
}

func TestScanner_RejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
		want  error
	}{
		{
			name:  "bad filename",
			files: fstest.MapFS{"create_users.sql": {Data: []byte("CREATE TABLE u (id TEXT);")}},
			want:  ErrInvalidMigrationFile,
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
				"001_c.sql": {Data: []byte("CREATE TABLE c (id TEXT);")},
			},
			want: ErrDuplicateVersion,
		},
		{
			name:  "comment only",
			files: fstest.MapFS{"001_empty.sql": {Data: []byte("-- nothing here\n")}},
			want:  ErrInvalidMigrationFile,
		},
		{
			name:  "unbalanced parentheses",
			files: fstest.MapFS{"001_broken.sql": {Data: []byte("CREATE TABLE a (id TEXT;")}},
			want:  ErrInvalidMigrationFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScanner(tt.files).ScanMigrations()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseSQL(t *testing.T) {
	statements := parseSQL(`
		-- Description: two statements
		CREATE TABLE a (id TEXT);

		-- index
		CREATE INDEX idx_a ON a (id);
	`)
	if len(statements) != 2 {
		t.Fatalf("Expected 2 statements, got %d: %q", len(statements), statements)
	}
	if statements[1] != "CREATE INDEX idx_a ON a (id)" {
		t.Errorf("Unexpected second statement %q", statements[1])
	}
}
