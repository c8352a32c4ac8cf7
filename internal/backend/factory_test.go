package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"findash/internal/config"
)

const sampleCSV = "id,date,description,amount,category,source,currency\n" +
	"abcdefghij01,2024-01-02,Salary,250000,Income,Bank,EUR\n" +
	"abcdefghij02,2024-01-03,Groceries,-4250,Food,Card,EUR\n"

func writeDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "2024.csv"), []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return dir
}

func TestBackendType_IsValid(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("postgres").IsValid() {
		t.Error("postgres should not be valid")
	}
	if got := GetBackendTypeStrings(); len(got) != 6 || got[0] != "csv" {
		t.Errorf("GetBackendTypeStrings() = %v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"csv", Config{Type: CSVBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"sheets without id", Config{Type: SheetsBackend, GoogleServiceAccountJSON: "{}"}, true},
		{"sheets without credentials", Config{Type: SheetsBackend, GoogleSpreadsheetID: "x"}, true},
		{"mongo without uri", Config{Type: MongoBackend}, true},
		{"remote without url", Config{Type: RemoteBackend}, true},
		{"unknown", Config{Type: "ftp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "ftp"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{DataBackend: "remote", RemoteAPIURL: "http://api:8000"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != RemoteBackend || cfg.RemoteAPIURL != "http://api:8000" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestCreateBackend(t *testing.T) {
	dir := writeDataDir(t)
	ctx := context.Background()
	f := NewFactory(nil)

	tests := []struct {
		name         string
		config       Config
		wantImporter bool
	}{
		{"csv", Config{Type: CSVBackend, DataDirectory: dir}, false},
		{"memory", Config{Type: MemoryBackend, DataDirectory: dir}, true},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "findash.db")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.CreateBackend(ctx, tt.config)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			if res.Cleanup != nil {
				defer res.Cleanup(ctx)
			}
			if (res.Importer != nil) != tt.wantImporter {
				t.Fatalf("importer present = %v, want %v", res.Importer != nil, tt.wantImporter)
			}
			if tt.config.Type == SQLiteBackend {
				return
			}
			files, err := res.Backend.ListFiles(ctx)
			if err != nil {
				t.Fatalf("ListFiles: %v", err)
			}
			if len(files) != 1 || files[0].Name != "2024.csv" || files[0].TransactionsCount != 2 {
				t.Fatalf("files = %+v", files)
			}
		})
	}
}

func TestCreateBackend_Remote(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: RemoteBackend, RemoteAPIURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if res.Backend == nil || res.Importer != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}
