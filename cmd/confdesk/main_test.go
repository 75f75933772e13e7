package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestReadConfigWithoutPathToleratesMissingFile(t *testing.T) {
	if err := readConfig(viper.New(), ""); err != nil {
		t.Fatalf("expected no error without a config path, got %v", err)
	}
}

func TestReadConfigRejectsMissingExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	if err := readConfig(viper.New(), path); err == nil {
		t.Fatalf("expected an error for missing config file %s", path)
	}
}

func TestReadConfigRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("http:\n  address: [unclosed\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := readConfig(viper.New(), path); err == nil {
		t.Fatal("expected a parse error for malformed config file")
	}
}

func TestReadConfigLoadsExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "confdesk.yaml")
	if err := os.WriteFile(path, []byte("http:\n  address: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	configViper := viper.New()
	if err := readConfig(configViper, path); err != nil {
		t.Fatalf("read config: %v", err)
	}
	if got := configViper.GetString("http.address"); got != ":9090" {
		t.Fatalf("expected http.address :9090, got %q", got)
	}
}
