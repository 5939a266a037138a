package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSource names the embedded configuration in error messages.
const DefaultSource = "<built-in>"

//go:embed default.yaml
var defaultYAML []byte

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// and parses it into a Config struct.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Default returns the built-in configuration, driven entirely by
// environment variables.
func Default() (*Config, error) {
	return Parse(defaultYAML, DefaultSource)
}

// DefaultYAML returns the raw built-in configuration.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultYAML))
	copy(out, defaultYAML)
	return out
}

// Parse decodes raw and expands environment variables in its values.
// source is only used in error messages.
func Parse(raw []byte, source string) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", source, err)
	}
	if err := expandEnv(&root); err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", source, err)
	}

	var cfg Config
	if root.Kind == 0 {
		return &cfg, nil
	}
	if err := root.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", source, err)
	}
	return &cfg, nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} in every scalar of the
// parsed tree, so substituted values never go through the YAML parser.
// Comments are not expanded. The error lists every unresolved variable.
func expandEnv(n *yaml.Node) error {
	var errs []error
	var walk func(*yaml.Node)
	walk = func(n *yaml.Node) {
		if n.Kind == yaml.ScalarNode {
			value, missing := expandString(n.Value)
			for _, name := range missing {
				errs = append(errs, fmt.Errorf("unresolved variable: %s is not set", name))
			}
			if value != n.Value {
				n.Value = value
				if n.Style == 0 {
					// Resolve plain scalars again: "${PORT}" was a string, "8080" is not.
					n.Tag = ""
				}
			}
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(n)
	return errors.Join(errs...)
}

// expandString substitutes the variables in s and returns the names of
// those with neither a value nor a default. They are left in place.
func expandString(s string) (string, []string) {
	var missing []string
	out := envPattern.ReplaceAllStringFunc(s, func(match string) string {
		subs := envPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(subs[1]); ok {
			return value
		}
		if strings.Contains(match, ":-") {
			return subs[2]
		}
		missing = append(missing, subs[1])
		return match
	})
	return out, missing
}

// LoadDotenv loads the first .env file found in dir or one of its parents.
// Variables already present in the environment are left untouched. It
// returns the path loaded, or "" when no file was found.
func LoadDotenv(dir string) (string, error) {
	path := FindDotenv(dir)
	if path == "" {
		return "", nil
	}
	if err := godotenv.Load(path); err != nil {
		return "", fmt.Errorf("config: loading %s: %w", path, err)
	}
	return path, nil
}

// FindDotenv walks from dir up to the filesystem root looking for ".env".
func FindDotenv(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
