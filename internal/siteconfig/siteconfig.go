// Package siteconfig implements the Config Provider collaborator's shape
// (spec §1, §6.3): it parses the one-per-project site configuration
// document and resolves secret references into the plain key/value map
// sqlsession.Open expects. Secret-reference resolution against an actual
// secret store is left pluggable via SecretResolver; this package only
// owns the document shape and profile selection.
package siteconfig

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/raw-labs/mxcp/internal/sqlsession"
)

// Profile is one named deployment profile (spec §6.3
// "profiles.<name>.{database, readonly, drift, audit}").
type Profile struct {
	Database string `mapstructure:"database"`
	ReadOnly bool   `mapstructure:"readonly"`
	Drift    bool   `mapstructure:"drift"`
	Audit    bool   `mapstructure:"audit"`
}

// Document is the parsed site config (spec §6.3).
type Document struct {
	SchemaVersion int                 `mapstructure:"schema-version"`
	Project       string              `mapstructure:"project"`
	Profile       string              `mapstructure:"profile"`
	Secrets       []string            `mapstructure:"secrets"`
	Extensions    []string            `mapstructure:"extensions"`
	Profiles      map[string]Profile  `mapstructure:"profiles"`
	SQLTools      struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"sql_tools"`
}

// SecretResolver resolves a secret name referenced in Document.Secrets to
// its current value, standing in for whatever backing secret store a
// deployment uses (env, file, vault, ...). This package never talks to one
// directly; callers set one on Provider.Resolver, and Load takes none.
type SecretResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Load reads path with viper (the pack-wide config library, per
// cmd/vmcp/app/commands.go's --config flag convention) and decodes it into
// a Document.
func Load(path string) (*Document, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading site config %s: %w", path, err)
	}
	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("decoding site config %s: %w", path, err)
	}
	if doc.SchemaVersion != 1 {
		return nil, fmt.Errorf("site config %s: schema-version must be 1, got %d", path, doc.SchemaVersion)
	}
	return &doc, nil
}

// ActiveProfile returns the Profile named by doc.Profile, or the zero value
// if the project defines no profiles block for it.
func (d *Document) ActiveProfile() Profile {
	if d.Profiles == nil {
		return Profile{}
	}
	return d.Profiles[d.Profile]
}

// Provider implements reload.ConfigProvider: on each reload it re-reads
// the site config file from disk and re-resolves every referenced secret,
// so environment/file/secret-store changes since the last (re)load take
// effect (spec §4.9 step 3).
type Provider struct {
	Path       string
	Resolver   SecretResolver
	Extensions []string
}

// ResolveSessionConfig re-parses the site config and resolves secrets into
// a fresh sqlsession.Config (spec §4.9 step 3, §6.3).
func (p *Provider) ResolveSessionConfig(ctx context.Context) (sqlsession.Config, error) {
	doc, err := Load(p.Path)
	if err != nil {
		return sqlsession.Config{}, err
	}
	profile := doc.ActiveProfile()

	secrets := make(map[string]string, len(doc.Secrets))
	for _, name := range doc.Secrets {
		value, err := p.Resolver.Resolve(ctx, name)
		if err != nil {
			return sqlsession.Config{}, fmt.Errorf("resolving secret %q: %w", name, err)
		}
		secrets[name] = value
	}

	return sqlsession.Config{
		DatabasePath: profile.Database,
		ReadOnly:     profile.ReadOnly,
		Extensions:   doc.Extensions,
		Secrets:      secrets,
	}, nil
}

// EnvResolver resolves secret names against process environment variables,
// the simplest real SecretResolver and a workable default for local/dev use
// (spec §6.6 "Environment selectors").
type EnvResolver struct {
	Lookup func(name string) (string, bool)
}

func (r EnvResolver) Resolve(_ context.Context, name string) (string, error) {
	lookup := r.Lookup
	if lookup == nil {
		lookup = defaultLookup
	}
	value, ok := lookup(name)
	if !ok {
		return "", fmt.Errorf("secret %q not set in environment", name)
	}
	return value, nil
}

func defaultLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}
