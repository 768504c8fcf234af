package confloader

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix prefixes every environment variable the loader reads.
const DefaultEnvPrefix = "REDOLOG_"

// ErrUnknownKeys is returned by a strict Load when the configuration file
// sets keys the target has no field for.
var ErrUnknownKeys = errors.New("confloader: unknown configuration keys")

// Loader layers configuration sources into one koanf tree.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
	strict    bool

	// fileKeys are the leaf keys the file set, for strict checking.
	fileKeys []string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile names the YAML file Load reads. Empty means none.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithOverrides applies m after the environment, typically values of
// command-line flags the user set. Keys may be dotted or nested.
func WithOverrides(m map[string]any) Option {
	return func(l *Loader) { l.overrides = m }
}

// WithStrict makes Load fail with ErrUnknownKeys when the file sets keys
// the target does not declare. Environment variables are not checked,
// since the prefix is shared with the CLI.
func WithStrict() Option {
	return func(l *Loader) { l.strict = true }
}

// NewLoader returns an empty loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the file, the environment and the overrides, in that order
// of increasing precedence, and unmarshals the result over target. Fields
// no source sets keep the value target already holds.
func (l *Loader) Load(target any) error {
	if err := l.LoadFile(l.filePath); err != nil {
		return err
	}
	if err := l.LoadEnv(); err != nil {
		return err
	}
	if len(l.overrides) > 0 {
		if err := l.LoadMap(l.overrides); err != nil {
			return err
		}
	}

	unused, err := l.unmarshal(target)
	if err != nil {
		return fmt.Errorf("confloader: unmarshal: %w", err)
	}
	if l.strict {
		if unknown := l.fromFile(unused); len(unknown) > 0 {
			return fmt.Errorf("%w in %s: %s", ErrUnknownKeys, l.filePath, strings.Join(unknown, ", "))
		}
	}
	return nil
}

// LoadFile merges a YAML file. An empty path is a no-op.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	fk := koanf.New(".")
	if err := fk.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("confloader: load %s: %w", path, err)
	}
	l.fileKeys = append(l.fileKeys, fk.Keys()...)
	return l.k.Merge(fk)
}

// LoadEnv merges environment variables carrying the loader's prefix.
// A single underscore separates levels unless the name contains a double
// underscore, which then is the only separator:
//
//	REDOLOG_SERVER_HTTP_ADDR=0.0.0.0:5080     -> server.http.addr
//	REDOLOG_STORAGE__DATA_DIR=/var/lib/rl     -> storage.data_dir
//	REDOLOG_WAL__MAX_SEGMENT_SIZE=134217728   -> wal.max_segment_size
func (l *Loader) LoadEnv() error {
	prefix := l.envPrefix
	p := env.Provider(prefix, ".", func(name string) string {
		return envKey(name, prefix)
	})
	if err := l.k.Load(p, nil); err != nil {
		return fmt.Errorf("confloader: load env: %w", err)
	}
	return nil
}

func envKey(name, prefix string) string {
	s := strings.ToLower(strings.TrimPrefix(name, prefix))
	if strings.Contains(s, "__") {
		return strings.ReplaceAll(s, "__", ".")
	}
	return strings.ReplaceAll(s, "_", ".")
}

// LoadMap merges m. Keys may be dotted paths or nested maps.
func (l *Loader) LoadMap(m map[string]any) error {
	if err := l.k.Load(mapProvider(m), nil); err != nil {
		return fmt.Errorf("confloader: load map: %w", err)
	}
	return nil
}

// Unmarshal decodes everything loaded so far over target.
func (l *Loader) Unmarshal(target any) error {
	_, err := l.unmarshal(target)
	return err
}

// unmarshal decodes with koanf's usual hooks and reports the keys no
// field consumed.
func (l *Loader) unmarshal(target any) ([]string, error) {
	var md mapstructure.Metadata
	dc := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.TextUnmarshallerHookFunc(),
		),
		Metadata:         &md,
		Result:           target,
		WeaklyTypedInput: true,
	}
	if err := l.k.UnmarshalWithConf("", target, koanf.UnmarshalConf{Tag: "koanf", DecoderConfig: dc}); err != nil {
		return nil, err
	}
	return md.Unused, nil
}

// fromFile keeps the unused keys that came from the file, either as a
// leaf or as the root of a section the target lacks.
func (l *Loader) fromFile(unused []string) []string {
	var out []string
	for _, u := range unused {
		for _, fk := range l.fileKeys {
			if fk == u || strings.HasPrefix(fk, u+".") {
				out = append(out, u)
				break
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Keys returns the flattened keys loaded so far.
func (l *Loader) Keys() []string {
	return l.k.Keys()
}

// String returns the string at key, or "".
func (l *Loader) String(key string) string {
	return l.k.String(key)
}
