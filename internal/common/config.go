package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the application configuration, loaded with priority:
// defaults -> config file(s) -> environment variables -> CLI flags.
type Config struct {
	Environment string            `toml:"environment"`
	Server      ServerConfig      `toml:"server"`
	TempDir     TempDirConfig     `toml:"temp_dir"`
	Logging     LoggingConfig     `toml:"logging"`
	Jobs        JobsConfig        `toml:"jobs"`
	Storage     StorageConfig     `toml:"storage"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
	Source      SourceConfig      `toml:"source"`
	Media       MediaConfig       `toml:"media"`
	Markdown    MarkdownConfig    `toml:"markdown"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Similarity  SimilarityConfig  `toml:"similarity"`
	Publisher   PublisherConfig   `toml:"publisher"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// TempDirConfig controls where per-job working directories are created and
// whether they are retained after the job completes.
type TempDirConfig struct {
	Root          string `toml:"root"`           // TEMP_DIR
	KeepTmpFiles  bool   `toml:"keep_tmp_files"` // KEEP_TMP_FILES
	PurgeTmpDir   bool   `toml:"purge_tmp_dir"`  // PURGE_TMP_DIR; loaded but not read by any component (no stale-dir sweep runs)
	StaleAfter    string `toml:"stale_after"`    // duration string, e.g. "24h"; not read by any component
	SweepSchedule string `toml:"sweep_schedule"` // cron expression; not read by any component (no periodic sweep runs)
}

type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

type JobsConfig struct {
	HardTimeout string `toml:"hard_timeout"` // per-job hard timeout, e.g. "30m"
	SoftTimeout string `toml:"soft_timeout"` // soft timeout for the whole job run, measured from job start (logged only; stages are not timed separately)
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"` // per-job state + issue log
	SQLite SQLiteConfig `toml:"sqlite"` // embedded DatabasePlugin output
}

type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type SQLiteConfig struct {
	Enabled  bool   `toml:"enabled"`
	Filename string `toml:"filename"` // artifact filename within the build dir
}

// ObjectStoreConfig configures the S3-compatible backend (R2 or equivalent).
type ObjectStoreConfig struct {
	AccountID       string `toml:"account_id"`
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	CDNHost         string `toml:"cdn_host"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

type SourceConfig struct {
	GitHubToken  string `toml:"github_token"`
	ShallowDepth int    `toml:"shallow_depth"`
	CloneTimeout string `toml:"clone_timeout"`
}

type MediaConfig struct {
	Sizes       []string `toml:"sizes"`   // e.g. ["xs","sm","md","lg","xl","2xl"]
	Formats     []string `toml:"formats"` // e.g. ["webp","jpeg"]
	Quality     int      `toml:"quality"`
	RequireMD   bool     `toml:"require_md"`
	Concurrency int      `toml:"concurrency"`
	MediaPrefix string   `toml:"media_prefix"`
}

type MarkdownConfig struct {
	NotePrefix       string   `toml:"note_prefix"`
	RemoveDeadLinks  bool     `toml:"remove_dead_links"`
	MermaidStrategy  string   `toml:"mermaid_strategy"` // inline-svg | img-svg | pre-mermaid
	ParseFormulas    bool     `toml:"parse_formulas"`
	IframeService    string   `toml:"iframe_service"`
	Concurrency      int      `toml:"concurrency"`
	IframeCategories []string `toml:"iframe_categories"` // categories enabled by default
}

type EmbeddingConfig struct {
	SkipEmbeddings bool   `toml:"skip_embeddings"` // SKIP_EMBEDDINGS
	TextDimension  int    `toml:"text_dimension"`
	ImageDimension int    `toml:"image_dimension"`
	GenAIAPIKey    string `toml:"genai_api_key"`
	Model          string `toml:"model"`
}

type SimilarityConfig struct {
	TopK int `toml:"top_k"`
}

type PublisherConfig struct {
	Concurrency          int   `toml:"concurrency"`
	MaxFileSizeBytes     int64 `toml:"max_file_size_bytes"`
	SkipExistingFiles    bool  `toml:"skip_existing_files"`
	SkipIdenticalContent bool  `toml:"skip_identical_content"`
}

// NewDefaultConfig returns a configuration with sane defaults; only
// user-facing settings need to be present in the config file.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		TempDir: TempDirConfig{
			Root:          "/tmp",
			StaleAfter:    "24h",
			SweepSchedule: "0 */15 * * * *",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Jobs: JobsConfig{
			HardTimeout: "30m",
			SoftTimeout: "5m",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/jobs"},
			SQLite: SQLiteConfig{Enabled: true, Filename: "content.db"},
		},
		ObjectStore: ObjectStoreConfig{
			Region: "auto",
		},
		Source: SourceConfig{
			ShallowDepth: 1,
			CloneTimeout: "5m",
		},
		Media: MediaConfig{
			Sizes:       []string{"xs", "sm", "md", "lg", "xl", "2xl"},
			Formats:     []string{"webp", "jpeg"},
			Quality:     82,
			RequireMD:   true,
			Concurrency: 0, // 0 => runtime.NumCPU()
			MediaPrefix: "medias",
		},
		Markdown: MarkdownConfig{
			NotePrefix:       "/notes",
			RemoveDeadLinks:  false,
			MermaidStrategy:  "pre-mermaid",
			ParseFormulas:    true,
			IframeService:    "https://embed.example.com",
			Concurrency:      0,
			IframeCategories: []string{"mermaid", "video", "midi", "model3d"},
		},
		Embedding: EmbeddingConfig{
			TextDimension:  384,
			ImageDimension: 512,
			Model:          "text-embedding-004",
		},
		Similarity: SimilarityConfig{TopK: 10},
		Publisher: PublisherConfig{
			Concurrency:          10,
			MaxFileSizeBytes:     50 * 1024 * 1024,
			SkipExistingFiles:    true,
			SkipIdenticalContent: true,
		},
	}
}

// LoadFromFiles loads configuration from multiple TOML files, applying
// later files over earlier ones, then environment variables on top.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// ApplyFlagOverrides applies CLI-flag overrides; these take highest priority.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.Server.Port = p
		}
	}
	if v := os.Getenv("TEMP_DIR"); v != "" {
		config.TempDir.Root = v
	}
	if v := os.Getenv("KEEP_TMP_FILES"); v != "" {
		config.TempDir.KeepTmpFiles = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PURGE_TMP_DIR"); v != "" {
		config.TempDir.PurgeTmpDir = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SKIP_EMBEDDINGS"); v != "" {
		config.Embedding.SkipEmbeddings = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("R2_ACCOUNT_ID"); v != "" {
		config.ObjectStore.AccountID = v
	}
	if v := os.Getenv("R2_ACCESS_KEY_ID"); v != "" {
		config.ObjectStore.AccessKeyID = v
	}
	if v := os.Getenv("R2_SECRET_ACCESS_KEY"); v != "" {
		config.ObjectStore.SecretAccessKey = v
	}
	if v := os.Getenv("R2_BUCKET_NAME"); v != "" {
		config.ObjectStore.Bucket = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		config.Source.GitHubToken = v
	}
}

// HardTimeout parses Jobs.HardTimeout, defaulting to 30 minutes on error.
func (c *Config) HardTimeout() time.Duration {
	d, err := time.ParseDuration(c.Jobs.HardTimeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// SoftTimeout parses Jobs.SoftTimeout, defaulting to 5 minutes on error.
func (c *Config) SoftTimeout() time.Duration {
	d, err := time.ParseDuration(c.Jobs.SoftTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}
