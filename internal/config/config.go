package config

import (
	"fmt"
	"strings"

	"github.com/acme-corp/staging-pipeline/internal/transform"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. STAGEDUP_ROOT.
const EnvPrefix = "STAGEDUP"

// Config holds all configuration for one pipeline invocation.
type Config struct {
	// Root is the storage root: s3://bucket[/prefix] or a local directory.
	Root string
	// StagingPrefix is where accepted artifacts accumulate.
	StagingPrefix string
	// QuarantinePrefix receives corrupt rows; empty disables quarantine
	// artifacts (the rows are still counted and logged).
	QuarantinePrefix string
	KeyField         string
	InferSchema      bool
	// DuplicatePolicy is first, last or all; see transform.DuplicatePolicy.
	DuplicatePolicy string
	Parallelism     int
	AWS             AWSConfig
	MetricsFile     string
	Verbose         bool

	policy transform.DuplicatePolicy
}

type AWSConfig struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		StagingPrefix:    "staged/",
		QuarantinePrefix: "quarantine/",
		KeyField:         "Key",
		InferSchema:      true,
		DuplicatePolicy:  "first",
		Parallelism:      4,
	}
}

// Flags registers one flag per setting, each writing straight into c.
func (c *Config) Flags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Root, "root", c.Root, "Storage root: s3://bucket[/prefix] or a local directory.")
	fs.StringVar(&c.StagingPrefix, "staging-prefix", c.StagingPrefix, "Prefix under the root where staged artifacts accumulate.")
	fs.StringVar(&c.QuarantinePrefix, "quarantine-prefix", c.QuarantinePrefix, "Prefix for quarantined corrupt rows; empty disables.")
	fs.StringVar(&c.KeyField, "key-field", c.KeyField, "Name of the unique identifier column.")
	fs.BoolVar(&c.InferSchema, "infer-schema", c.InferSchema, "Infer column types from values.")
	fs.StringVar(&c.DuplicatePolicy, "duplicate-policy", c.DuplicatePolicy, "Repeated keys within one input: first, last or all.")
	fs.IntVar(&c.Parallelism, "parallelism", c.Parallelism, "Concurrent object reads when loading the staging area.")
	fs.StringVar(&c.AWS.Region, "aws-region", c.AWS.Region, "AWS region for S3 roots.")
	fs.StringVar(&c.AWS.Endpoint, "aws-endpoint", c.AWS.Endpoint, "Custom S3 endpoint, e.g. for MinIO.")
	fs.BoolVar(&c.AWS.PathStyle, "aws-path-style", c.AWS.PathStyle, "Use path-style S3 addressing.")
	fs.StringVar(&c.MetricsFile, "metrics-file", c.MetricsFile, "Write prometheus metrics to this textfile after the run.")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "Enable debug logging.")
}

// Load applies, in decreasing priority, command line flags, STAGEDUP_*
// environment variables and the TOML file named by the "config" flag to
// every flag in flags, then validates c. Flags must have been registered
// with c.Flags.
//
// Environment variable names are the flag names upper-cased with dashes
// replaced by underscores.
func (c *Config) Load(flags *pflag.FlagSet) error {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		validTags[f.Name] = true
	})

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", file, err)
		}
		for _, key := range v.AllKeys() {
			if !validTags[key] {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			// A flag set on the command line wins over everything else.
			return
		}
		if !v.IsSet(f.Name) {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil {
			flagErr = fmt.Errorf("setting %s: %w", f.Name, err)
		}
	})
	if flagErr != nil {
		return flagErr
	}
	return c.validate()
}

// Policy returns the parsed duplicate policy. Valid after Load or Validate.
func (c *Config) Policy() transform.DuplicatePolicy { return c.policy }

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error { return c.validate() }

func (c *Config) validate() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if c.KeyField == "" {
		return fmt.Errorf("key-field is required")
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4 // sensible default
	}

	c.StagingPrefix = dirPrefix(c.StagingPrefix)
	if c.StagingPrefix == "" {
		return fmt.Errorf("staging-prefix is required")
	}
	c.QuarantinePrefix = dirPrefix(c.QuarantinePrefix)
	if c.QuarantinePrefix != "" &&
		(strings.HasPrefix(c.QuarantinePrefix, c.StagingPrefix) || strings.HasPrefix(c.StagingPrefix, c.QuarantinePrefix)) {
		return fmt.Errorf("quarantine-prefix %q must not overlap staging-prefix %q", c.QuarantinePrefix, c.StagingPrefix)
	}

	policy, err := transform.ParseDuplicatePolicy(c.DuplicatePolicy)
	if err != nil {
		return err
	}
	c.policy = policy
	return nil
}

// dirPrefix normalises a prefix to "a/b/" form; empty stays empty.
func dirPrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
