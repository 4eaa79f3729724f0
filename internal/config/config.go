// Package config loads and validates mirror configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Deploy methods understood by the deployer registry.
const (
	MethodZip       = "zip"
	MethodFolder    = "folder"
	MethodGCS       = "gcs"
	MethodS3        = "s3"
	MethodGitHub    = "github"
	MethodGitLab    = "gitlab"
	MethodBitbucket = "bitbucket"
	MethodBunnyCDN  = "bunnycdn"
	MethodFTP       = "ftp"
)

// Storage backends for queue and cache tables.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config captures every knob for one generate or deploy invocation.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Rewrite RewriteConfig `mapstructure:"rewrite"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Deploy  DeployConfig  `mapstructure:"deploy"`
	Storage StorageConfig `mapstructure:"storage"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// SiteConfig describes the live source site.
type SiteConfig struct {
	URL               string   `mapstructure:"url"`
	BasicAuthUser     string   `mapstructure:"basic_auth_user"`
	BasicAuthPassword string   `mapstructure:"basic_auth_password"`
	Port              int      `mapstructure:"port"`
	Seeds             []string `mapstructure:"seeds"`
}

// CrawlConfig governs the crawl batch loop.
type CrawlConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	Exclude           []string      `mapstructure:"exclude"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Discover          bool          `mapstructure:"discover"`
}

// RewriteConfig controls how fetched markup is re-targeted.
type RewriteConfig struct {
	DestinationURL           string `mapstructure:"destination_url"`
	Mode                     string `mapstructure:"mode"`
	Rules                    string `mapstructure:"rules"`
	BaseHref                 string `mapstructure:"base_href"`
	ComparisonDomain         string `mapstructure:"comparison_domain"`
	StripHTMLComments        bool   `mapstructure:"strip_html_comments"`
	StripConditionalComments bool   `mapstructure:"strip_conditional_comments"`
	StripPlatformMeta        bool   `mapstructure:"strip_platform_meta"`
}

// ArchiveConfig locates the working directory tree.
type ArchiveConfig struct {
	Root   string `mapstructure:"root"`
	Retain int    `mapstructure:"retain"`
	Zip    bool   `mapstructure:"zip"`
}

// DeployConfig selects and configures the deployment target.
type DeployConfig struct {
	Method    string          `mapstructure:"method"`
	BatchSize int             `mapstructure:"batch_size"`
	Delay     time.Duration   `mapstructure:"delay"`
	Namespace string          `mapstructure:"namespace"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	Redirects []string        `mapstructure:"redirects"`
	Headers   []string        `mapstructure:"headers"`
	Folder    FolderConfig    `mapstructure:"folder"`
	Zip       ZipConfig       `mapstructure:"zip"`
	GCS       GCSConfig       `mapstructure:"gcs"`
	S3        S3Config        `mapstructure:"s3"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	GitLab    GitLabConfig    `mapstructure:"gitlab"`
	Bitbucket BitbucketConfig `mapstructure:"bitbucket"`
	BunnyCDN  BunnyCDNConfig  `mapstructure:"bunnycdn"`
	FTP       FTPConfig       `mapstructure:"ftp"`
}

// FolderConfig targets a local directory.
type FolderConfig struct {
	Path string `mapstructure:"path"`
}

// ZipConfig targets a local zip file.
type ZipConfig struct {
	Dir string `mapstructure:"dir"`
}

// GCSConfig targets a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Endpoint string `mapstructure:"endpoint"`
}

// S3Config targets any S3-compatible object store.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// GitHubConfig targets a repository through the contents API.
type GitHubConfig struct {
	APIURL string `mapstructure:"api_url"`
	Repo   string `mapstructure:"repo"`
	Branch string `mapstructure:"branch"`
	Path   string `mapstructure:"path"`
	Token  string `mapstructure:"token"`
}

// GitLabConfig targets a project through the commits API.
type GitLabConfig struct {
	APIURL    string `mapstructure:"api_url"`
	ProjectID string `mapstructure:"project_id"`
	Branch    string `mapstructure:"branch"`
	Token     string `mapstructure:"token"`
}

// BitbucketConfig targets a repository through the src form endpoint.
type BitbucketConfig struct {
	APIURL   string `mapstructure:"api_url"`
	Repo     string `mapstructure:"repo"`
	Branch   string `mapstructure:"branch"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// BunnyCDNConfig targets a storage zone fronted by a pull zone.
type BunnyCDNConfig struct {
	StorageURL  string `mapstructure:"storage_url"`
	StorageZone string `mapstructure:"storage_zone"`
	AccessKey   string `mapstructure:"access_key"`
	APIURL      string `mapstructure:"api_url"`
	APIKey      string `mapstructure:"api_key"`
	PullZoneID  string `mapstructure:"pull_zone_id"`
}

// FTPConfig targets a plain FTP server.
type FTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	RemotePath string `mapstructure:"remote_path"`
}

// StorageConfig picks where queue and cache tables live.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	DSN        string `mapstructure:"dsn"`
	MaxConns   int32  `mapstructure:"max_conns"`
	Prefix     string `mapstructure:"table_prefix"`
}

// NotifyConfig holds the post-deploy Pub/Sub topic.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the interactive HTTP service.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TracingConfig controls OpenTelemetry spans. Spans are exported to Cloud
// Trace only when ProjectID is set.
type TracingConfig struct {
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// Load builds a Config from disk and environment. Overrides are form-submitted
// values and take precedence over everything else.
func Load(path string, overrides map[string]any) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("site.url", "")
	v.SetDefault("rewrite.destination_url", "")
	v.SetDefault("site.seeds", []string{"/", "/robots.txt"})
	v.SetDefault("crawl.batch_size", 20)
	v.SetDefault("crawl.timeout", 10*time.Minute)
	v.SetDefault("crawl.user_agent", "static-mirror/0.1")
	v.SetDefault("crawl.discover", true)
	v.SetDefault("rewrite.mode", "absolute")
	v.SetDefault("rewrite.strip_html_comments", true)
	v.SetDefault("rewrite.strip_conditional_comments", false)
	v.SetDefault("rewrite.strip_platform_meta", true)
	v.SetDefault("archive.root", "mirror-work")
	v.SetDefault("archive.retain", 3)
	v.SetDefault("deploy.method", MethodZip)
	v.SetDefault("deploy.batch_size", 10)
	v.SetDefault("deploy.timeout", 10*time.Minute)
	v.SetDefault("deploy.github.api_url", "https://api.github.com")
	v.SetDefault("deploy.github.branch", "main")
	v.SetDefault("deploy.gitlab.api_url", "https://gitlab.com/api/v4")
	v.SetDefault("deploy.gitlab.branch", "main")
	v.SetDefault("deploy.bitbucket.api_url", "https://api.bitbucket.org/2.0")
	v.SetDefault("deploy.bitbucket.branch", "main")
	v.SetDefault("deploy.bunnycdn.storage_url", "https://storage.bunnycdn.com")
	v.SetDefault("deploy.bunnycdn.api_url", "https://api.bunny.net")
	v.SetDefault("deploy.s3.region", "us-east-1")
	v.SetDefault("deploy.s3.use_ssl", true)
	v.SetDefault("deploy.ftp.port", 21)
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite_path", "mirror.db")
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("storage.table_prefix", "mirror")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("tracing.service_name", "static-mirror")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validateBaseURL("site.url", c.Site.URL); err != nil {
		return err
	}
	if err := validateBaseURL("rewrite.destination_url", c.Rewrite.DestinationURL); err != nil {
		return err
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Deploy.BatchSize <= 0 {
		return fmt.Errorf("deploy.batch_size must be > 0")
	}
	if c.Deploy.Delay < 0 {
		return fmt.Errorf("deploy.delay must be >= 0")
	}
	switch c.Rewrite.Mode {
	case "absolute", "relative", "offline":
	default:
		return fmt.Errorf("rewrite.mode %q is not one of absolute, relative, offline", c.Rewrite.Mode)
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return c.Deploy.validate()
}

func (d DeployConfig) validate() error {
	missing := func(field string) error {
		return fmt.Errorf("deploy.%s must be set for method %s", field, d.Method)
	}
	switch d.Method {
	case MethodZip:
	case MethodFolder:
		if d.Folder.Path == "" {
			return missing("folder.path")
		}
	case MethodGCS:
		if d.GCS.Bucket == "" {
			return missing("gcs.bucket")
		}
	case MethodS3:
		if d.S3.Bucket == "" || d.S3.Endpoint == "" {
			return missing("s3.bucket and s3.endpoint")
		}
	case MethodGitHub:
		if d.GitHub.Repo == "" || d.GitHub.Token == "" {
			return missing("github.repo and github.token")
		}
	case MethodGitLab:
		if d.GitLab.ProjectID == "" || d.GitLab.Token == "" {
			return missing("gitlab.project_id and gitlab.token")
		}
	case MethodBitbucket:
		if d.Bitbucket.Repo == "" || d.Bitbucket.User == "" {
			return missing("bitbucket.repo and bitbucket.user")
		}
	case MethodBunnyCDN:
		if d.BunnyCDN.StorageZone == "" || d.BunnyCDN.AccessKey == "" {
			return missing("bunnycdn.storage_zone and bunnycdn.access_key")
		}
	case MethodFTP:
		if d.FTP.Host == "" {
			return missing("ftp.host")
		}
	default:
		return fmt.Errorf("deploy.method %q is not supported", d.Method)
	}
	return nil
}

// CacheNamespace isolates deploy cache entries per target.
func (d DeployConfig) CacheNamespace() string {
	if d.Namespace != "" {
		return d.Namespace
	}
	return d.Method
}

func validateBaseURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s must be set", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}
