package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix prefixes every environment override, e.g.
// DEVTEAM_EVALUATION_MAX_LOOPS.
const DefaultEnvPrefix = "DEVTEAM"

// Loader builds a Config from defaults, an optional YAML file and the
// environment.
type Loader struct {
	configPath string
	envPrefix  string
	lookup     func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader returns a loader with the DEVTEAM prefix and no validators.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		lookup:    os.LookupEnv,
	}
}

// WithConfigPath sets the YAML file. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix replaces DefaultEnvPrefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLookup replaces os.LookupEnv as the source of overrides.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookup = lookup
	}
	return l
}

// WithValidator adds a check run after all sources are applied.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load applies defaults, then the file, then the environment, then runs
// the validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	if l.configPath != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := l.applyEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}
	return nil
}

func (l *Loader) applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		if field.Kind() == reflect.Struct {
			if err := l.applyEnv(field, key); err != nil {
				return err
			}
			continue
		}
		raw, ok := l.lookup(key)
		if !ok || raw == "" {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setField(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice of %s", field.Type().Elem())
		}
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = reflect.Append(out, reflect.ValueOf(p).Convert(field.Type().Elem()))
			}
		}
		field.Set(out)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

// Load reads path and the environment and validates the result.
func Load(path string) (*Config, error) {
	return NewLoader().
		WithConfigPath(path).
		WithValidator((*Config).Validate).
		Load()
}
