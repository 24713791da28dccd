package aprilvoice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/agnivade/aprilvoice/audio"
	"github.com/agnivade/aprilvoice/logging"
	"github.com/agnivade/aprilvoice/providers"
	"github.com/agnivade/aprilvoice/providers/accounts"
	"github.com/agnivade/aprilvoice/providers/accounts/postgres"
	"github.com/agnivade/aprilvoice/providers/accounts/redis"
	"github.com/agnivade/aprilvoice/providers/accounts/sqlite"
	"github.com/agnivade/aprilvoice/providers/azure"
	"github.com/agnivade/aprilvoice/providers/deepgram"
	"github.com/agnivade/aprilvoice/providers/gemini"
	"github.com/agnivade/aprilvoice/providers/google"
	"github.com/agnivade/aprilvoice/providers/openai"
)

// ErrNoCloudProviders is returned by Build when no vendor has an account.
var ErrNoCloudProviders = errors.New("no cloud providers configured")

// CloudConfig lists the cloud vendors and their accounts. Vendors left out,
// or without accounts, are not used.
type CloudConfig struct {
	Gemini   *VendorConfig `yaml:"gemini" toml:"gemini"`
	Azure    *VendorConfig `yaml:"azure" toml:"azure"`
	Google   *VendorConfig `yaml:"google" toml:"google"`
	OpenAI   *VendorConfig `yaml:"openai" toml:"openai"`
	Deepgram *VendorConfig `yaml:"deepgram" toml:"deepgram"`
}

// VendorConfig configures one vendor.
type VendorConfig struct {
	// Priority overrides the vendor default. Lower is tried first.
	Priority *int            `yaml:"priority" toml:"priority"`
	Language string          `yaml:"language" toml:"language"`
	Model    string          `yaml:"model" toml:"model"`
	Accounts []AccountConfig `yaml:"accounts" toml:"accounts"`
}

// AccountConfig configures one vendor account.
type AccountConfig struct {
	Name   string `yaml:"name" toml:"name"`
	APIKey string `yaml:"api_key" toml:"api_key"`
	// CredentialsJSON is a Google service account file path or its content.
	CredentialsJSON string   `yaml:"credentials_json" toml:"credentials_json"`
	Region          string   `yaml:"region" toml:"region"`
	ProjectID       string   `yaml:"project_id" toml:"project_id"`
	MonthlyLimit    *float64 `yaml:"monthly_limit" toml:"monthly_limit"`
	Enabled         *bool    `yaml:"enabled" toml:"enabled"`
}

type vendor struct {
	name     string
	priority int
	limit    float64
	cfg      *VendorConfig
}

func (c CloudConfig) vendors() []vendor {
	return []vendor{
		{name: "gemini", priority: 0, limit: gemini.DefaultMonthlyLimit, cfg: c.Gemini},
		{name: "azure", priority: 1, limit: azure.DefaultMonthlyLimit, cfg: c.Azure},
		{name: "google", priority: 2, limit: google.DefaultMonthlyLimit, cfg: c.Google},
		{name: "openai", priority: 3, limit: openai.DefaultMonthlyLimit, cfg: c.OpenAI},
		{name: "deepgram", priority: 4, limit: deepgram.DefaultMonthlyLimit, cfg: c.Deepgram},
	}
}

// LoadCloudConfig reads a cloud config file. The format follows the
// extension: .toml is TOML, anything else YAML (which also accepts JSON).
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadCloudConfig(path string) (CloudConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CloudConfig{}, fmt.Errorf("read cloud config: %w", err)
	}
	return ParseCloudConfig(data, filepath.Ext(path))
}

// ParseCloudConfig parses data in the format named by ext.
func ParseCloudConfig(data []byte, ext string) (CloudConfig, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg CloudConfig
	var err error
	switch strings.ToLower(ext) {
	case ".toml":
		err = toml.Unmarshal(expanded, &cfg)
	default:
		err = yaml.Unmarshal(expanded, &cfg)
	}
	if err != nil {
		return CloudConfig{}, fmt.Errorf("parse cloud config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return CloudConfig{}, err
	}
	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c CloudConfig) Validate() error {
	for _, v := range c.vendors() {
		if v.cfg == nil {
			continue
		}
		names := make(map[string]bool, len(v.cfg.Accounts))
		for i, acc := range v.cfg.Accounts {
			if acc.Name == "" {
				return fmt.Errorf("cloud config: %s.accounts[%d]: name is required", v.name, i)
			}
			if names[acc.Name] {
				return fmt.Errorf("cloud config: %s: duplicate account name %q", v.name, acc.Name)
			}
			names[acc.Name] = true

			switch {
			case v.name == "google" && acc.CredentialsJSON == "":
				return fmt.Errorf("cloud config: %s.accounts[%d] (%s): credentials_json is required", v.name, i, acc.Name)
			case v.name != "google" && acc.APIKey == "":
				return fmt.Errorf("cloud config: %s.accounts[%d] (%s): api_key is required", v.name, i, acc.Name)
			case v.name == "azure" && acc.Region == "":
				return fmt.Errorf("cloud config: %s.accounts[%d] (%s): region is required", v.name, i, acc.Name)
			}
			if acc.MonthlyLimit != nil && *acc.MonthlyLimit < 0 {
				return fmt.Errorf("cloud config: %s.accounts[%d] (%s): monthly_limit must not be negative", v.name, i, acc.Name)
			}
		}
	}
	return nil
}

// BuildOptions carries the shared collaborators of the cloud providers.
type BuildOptions struct {
	Normalizer *audio.Normalizer
	Store      accounts.UsageStore
	Log        logrus.FieldLogger
}

// Build creates a router with one provider per configured vendor. Usage is
// restored from opts.Store when set.
func (c CloudConfig) Build(ctx context.Context, opts BuildOptions) (*ProviderRouter, error) {
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = audio.NewNormalizer(nil, opts.Log)
	}

	router := NewProviderRouter(opts.Log)
	for _, v := range c.vendors() {
		if v.cfg == nil || len(v.cfg.Accounts) == 0 {
			continue
		}

		pool := c.pool(ctx, v, opts)
		p := newVendorProvider(v, pool, opts)

		priority := v.priority
		if v.cfg.Priority != nil {
			priority = *v.cfg.Priority
		}
		router.AddProvider(v.name, p, priority)
		opts.Log.WithFields(logrus.Fields{
			"provider": v.name,
			"accounts": pool.Len(),
			"priority": priority,
		}).Info("Added cloud provider")
	}

	if router.Len() == 0 {
		return nil, ErrNoCloudProviders
	}
	return router, nil
}

func (c CloudConfig) pool(ctx context.Context, v vendor, opts BuildOptions) *accounts.Pool {
	poolOpts := []accounts.Option{accounts.WithLogger(opts.Log)}
	if opts.Store != nil {
		poolOpts = append(poolOpts, accounts.WithUsageStore(opts.Store))
	}
	pool := accounts.NewPool(v.name, poolOpts...)

	for _, acc := range v.cfg.Accounts {
		limit := v.limit
		if acc.MonthlyLimit != nil {
			limit = *acc.MonthlyLimit
		}
		secret := acc.APIKey
		if v.name == "google" {
			secret = acc.CredentialsJSON
		}
		pool.Add(accounts.Account{
			Name:         acc.Name,
			Secret:       secret,
			Region:       acc.Region,
			Project:      acc.ProjectID,
			MonthlyLimit: limit,
			Enabled:      acc.Enabled == nil || *acc.Enabled,
		})
	}

	if opts.Store != nil {
		if err := pool.Restore(ctx); err != nil {
			opts.Log.WithError(err).WithField("provider", v.name).Warn("Failed to restore account usage")
		}
	}
	return pool
}

func newVendorProvider(v vendor, pool *accounts.Pool, opts BuildOptions) providers.Provider {
	switch v.name {
	case "gemini":
		return gemini.NewProvider(pool, gemini.Config{Model: v.cfg.Model}, opts.Normalizer, opts.Log)
	case "azure":
		return azure.NewProvider(pool, azure.Config{Language: v.cfg.Language}, opts.Normalizer, opts.Log)
	case "google":
		return google.NewProvider(pool, google.Config{Language: v.cfg.Language, Model: v.cfg.Model}, opts.Normalizer, opts.Log)
	case "openai":
		return openai.NewProvider(pool, openai.Config{Language: v.cfg.Language, Model: v.cfg.Model}, opts.Normalizer, opts.Log)
	case "deepgram":
		return deepgram.NewProvider(pool, deepgram.Config{Language: v.cfg.Language, Model: v.cfg.Model}, opts.Normalizer, opts.Log)
	}
	panic("unknown vendor " + v.name)
}

// OpenUsageStore opens the usage store named by url:
//
//	sqlite://<path>       local file, created if missing
//	redis://, rediss://   Redis hashes
//	postgres://, postgresql://
//
// An empty url returns a nil store; usage then lives in memory only.
func OpenUsageStore(ctx context.Context, url string) (accounts.UsageStore, error) {
	switch {
	case url == "":
		return nil, nil
	case strings.HasPrefix(url, "sqlite://"):
		s, err := sqlite.Open(ctx, strings.TrimPrefix(url, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		s, err := redis.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		s, err := postgres.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported usage store %q", url)
}
