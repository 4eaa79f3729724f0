package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
site:
  url: http://localsite.com/
  basic_auth_user: admin
  basic_auth_password: pw
  seeds: ["/", "/about/"]
crawl:
  batch_size: 5
  exclude: ["/wp-admin"]
  timeout: 30s
rewrite:
  destination_url: https://deploysite.com/
  mode: offline
  rules: |
    wp-content,contents
    wp-includes,inc
deploy:
  method: s3
  batch_size: 25
  delay: 2s
  s3:
    endpoint: minio.local:9000
    bucket: site
storage:
  backend: memory
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.BasicAuthUser != "admin" || len(cfg.Site.Seeds) != 2 {
		t.Fatalf("expected site overrides to apply: %+v", cfg.Site)
	}
	if cfg.Crawl.BatchSize != 5 || cfg.Crawl.Timeout != 30*time.Second {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if cfg.Rewrite.Mode != "offline" || !strings.Contains(cfg.Rewrite.Rules, "wp-includes,inc") {
		t.Fatalf("expected rewrite overrides to apply: %+v", cfg.Rewrite)
	}
	if cfg.Deploy.Delay != 2*time.Second || cfg.Deploy.S3.Bucket != "site" {
		t.Fatalf("expected deploy overrides to apply: %+v", cfg.Deploy)
	}
	if !cfg.Deploy.S3.UseSSL || cfg.Deploy.S3.Region != "us-east-1" {
		t.Fatalf("expected s3 defaults to survive: %+v", cfg.Deploy.S3)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected development logging to be disabled")
	}
	if got := cfg.Deploy.CacheNamespace(); got != MethodS3 {
		t.Fatalf("expected namespace to default to method, got %q", got)
	}
}

func TestLoadFormOverridesWin(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", map[string]any{
		"site.url":                "http://localsite.com/",
		"rewrite.destination_url": "https://deploysite.com/",
		"deploy.batch_size":       3,
		"deploy.namespace":        "staging",
		"storage.backend":         BackendMemory,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Deploy.BatchSize != 3 {
		t.Fatalf("expected batch size 3, got %d", cfg.Deploy.BatchSize)
	}
	if cfg.Deploy.CacheNamespace() != "staging" {
		t.Fatalf("expected explicit namespace, got %q", cfg.Deploy.CacheNamespace())
	}
	if cfg.Deploy.Method != MethodZip || cfg.Crawl.Timeout != 10*time.Minute {
		t.Fatalf("expected defaults for untouched keys: %+v", cfg.Deploy)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MIRROR_SITE_URL", "http://env.local/")
	t.Setenv("MIRROR_REWRITE_DESTINATION_URL", "https://env.example/")
	t.Setenv("MIRROR_STORAGE_BACKEND", "memory")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Site.URL != "http://env.local/" {
		t.Fatalf("expected env site url, got %q", cfg.Site.URL)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Site:    SiteConfig{URL: "http://localsite.com/"},
			Crawl:   CrawlConfig{BatchSize: 1},
			Rewrite: RewriteConfig{DestinationURL: "https://deploysite.com/", Mode: "absolute"},
			Deploy:  DeployConfig{Method: MethodZip, BatchSize: 1},
			Storage: StorageConfig{Backend: BackendMemory},
			Server:  ServerConfig{Port: 8080},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing site", mutate: func(c *Config) { c.Site.URL = "" }, wantErr: "site.url"},
		{name: "bad scheme", mutate: func(c *Config) { c.Rewrite.DestinationURL = "ftp://x/" }, wantErr: "http or https"},
		{name: "crawl batch", mutate: func(c *Config) { c.Crawl.BatchSize = 0 }, wantErr: "crawl.batch_size"},
		{name: "deploy batch", mutate: func(c *Config) { c.Deploy.BatchSize = -1 }, wantErr: "deploy.batch_size"},
		{name: "mode", mutate: func(c *Config) { c.Rewrite.Mode = "weird" }, wantErr: "rewrite.mode"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Storage.Backend = BackendPostgres }, wantErr: "storage.dsn"},
		{name: "unknown method", mutate: func(c *Config) { c.Deploy.Method = "carrier-pigeon" }, wantErr: "deploy.method"},
		{name: "github creds", mutate: func(c *Config) { c.Deploy.Method = MethodGitHub }, wantErr: "github.repo"},
		{name: "folder path", mutate: func(c *Config) { c.Deploy.Method = MethodFolder }, wantErr: "folder.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
