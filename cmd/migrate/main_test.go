package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_create_deals.sql", true, "0001", "create_deals"},
		{"0009_create_snapshots.sql", true, "0009", "create_snapshots"},
		{"001_invalid.sql", false, "", ""},       // wrong number format
		{"0001_test", false, "", ""},             // missing .sql
		{"0001.sql", false, "", ""},              // missing name
		{"invalid_0001_test.sql", false, "", ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			matches := migrationPattern.FindStringSubmatch(tt.filename)
			if tt.valid {
				if matches == nil {
					t.Fatalf("expected %s to match", tt.filename)
				}
				if matches[1] != tt.version || matches[2] != tt.name {
					t.Errorf("got version=%s name=%s, want version=%s name=%s",
						matches[1], matches[2], tt.version, tt.name)
				}
			} else if matches != nil {
				t.Errorf("expected %s not to match, got %v", tt.filename, matches)
			}
		})
	}
}

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, sql string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("0002_create_documents.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.documents` (id STRING);")
	write("0001_create_deals.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.deals` (id STRING);")
	write("README.md", "not a migration")

	files, err := loadMigrations(dir, "proj", "parity")
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d migrations, want 2", len(files))
	}
	if files[0].Version != 1 || files[1].Version != 2 {
		t.Errorf("migrations not sorted by version: %d, %d", files[0].Version, files[1].Version)
	}
	if !strings.Contains(files[0].SQL, "`proj.parity.deals`") {
		t.Errorf("placeholders not substituted: %s", files[0].SQL)
	}

	// Checksum covers the raw file, not the substituted SQL.
	raw := "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.deals` (id STRING);"
	want := fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
	if files[0].Checksum != want {
		t.Errorf("checksum = %s, want %s", files[0].Checksum, want)
	}
}

func TestVerifyChecksums(t *testing.T) {
	sum := func(s string) string { return fmt.Sprintf("%x", sha256.Sum256([]byte(s))) }
	files := []migrationFile{
		{Version: 1, Name: "create_deals", Filename: "0001_create_deals.sql", Checksum: sum("a")},
		{Version: 2, Name: "create_documents", Filename: "0002_create_documents.sql", Checksum: sum("b")},
	}

	tests := []struct {
		name    string
		applied []appliedRow
		wantErr bool
	}{
		{"nothing applied", nil, false},
		{"matching checksums", []appliedRow{{Version: 1, Checksum: sum("a")}}, false},
		{"legacy row without checksum", []appliedRow{{Version: 1}}, false},
		{"edited after apply", []appliedRow{{Version: 1, Checksum: sum("edited")}}, true},
		{"applied file missing on disk", []appliedRow{{Version: 3, Name: "gone", Checksum: sum("c")}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyChecksums(files, tt.applied)
			if (err != nil) != tt.wantErr {
				t.Errorf("verifyChecksums() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPendingMigrations(t *testing.T) {
	files := []migrationFile{{Version: 1}, {Version: 2}, {Version: 3}}
	applied := []appliedRow{{Version: 1, AppliedAt: time.Now()}, {Version: 2, AppliedAt: time.Now()}}

	pending := pendingMigrations(files, applied)
	if len(pending) != 1 || pending[0].Version != 3 {
		t.Fatalf("pending = %+v, want only version 3", pending)
	}

	if got := pendingMigrations(files, nil); len(got) != 3 {
		t.Errorf("with nothing applied, pending = %d, want 3", len(got))
	}
}
