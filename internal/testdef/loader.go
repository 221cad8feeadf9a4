// Package testdef provides test definition loading and validation.
// A test definition describes one integration test case: the pipeline
// input, the output table it should produce, and the validation queries
// to run against that table.
package testdef

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	errNoDefinitionsFound      = errors.New("no test definition files found")
	errMissingRequiredKey      = errors.New("missing required key")
	errEmptyRequiredKey        = errors.New("required key is empty")
	errInvalidKeyType          = errors.New("invalid key type")
	errInvalidQueryFragment    = errors.New("query must be a list of strings")
	errInvalidExpectedResult   = errors.New("expected_result must be a mapping")
	errUnsupportedExtraParam   = errors.New("extra parameter must be a scalar")
	errInvalidAssertionConfigs = errors.New("assertion_configs must be a list")
)

// requiredKeys must be present at the top level of every definition file.
var requiredKeys = []string{"test_name", "table_name", "input_pattern", "assertion_configs"}

// AssertionConfig is one validation query plus its expected single-row result.
type AssertionConfig struct {
	Query          []string
	ExpectedResult map[string]any
}

// Definition represents a complete test case specification.
type Definition struct {
	TestName         string
	TableName        string
	InputPattern     string
	AssertionConfigs []AssertionConfig

	// Extra holds any additional top-level fields, passed through as
	// launch parameters for the remote job.
	Extra map[string]string
}

// Loader discovers and parses test definition files.
type Loader interface {
	LoadDir(dir string) ([]*Definition, error)
	LoadFile(path string) (*Definition, error)
}

type loader struct {
	fsys fs.FS
	log  logrus.FieldLogger
}

// NewLoader creates a test definition loader reading from fsys.
func NewLoader(log logrus.FieldLogger, fsys fs.FS) Loader {
	return &loader{
		fsys: fsys,
		log:  log.WithField("component", "testdef_loader"),
	}
}

// LoadDir walks dir and loads every .json and .yaml definition found,
// including in subdirectories. Finding no definition at all is an error.
// Any malformed definition aborts the load; nothing should be launched
// from a partially valid suite.
func (l *loader) LoadDir(dir string) ([]*Definition, error) {
	var defs []*Definition

	err := fs.WalkDir(l.fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}

		def, err := l.LoadFile(path)
		if err != nil {
			return err
		}

		defs = append(defs, def)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading test definitions from %s: %w", dir, err)
	}

	if len(defs) == 0 {
		return nil, fmt.Errorf("%w in directory %s", errNoDefinitionsFound, dir)
	}

	l.log.WithFields(logrus.Fields{
		"dir":   dir,
		"tests": len(defs),
	}).Debug("loaded test definitions")

	return defs, nil
}

// LoadFile reads and validates a single definition file.
func (l *loader) LoadFile(path string) (*Definition, error) {
	data, err := fs.ReadFile(l.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	raw := make(map[string]any)

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing json in %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing yaml in %s: %w", path, err)
		}
	}

	def, err := buildDefinition(raw)
	if err != nil {
		return nil, fmt.Errorf("test definition %s: %w", path, err)
	}

	return def, nil
}

func buildDefinition(raw map[string]any) (*Definition, error) {
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("%w: %s", errMissingRequiredKey, key)
		}
	}

	def := &Definition{Extra: make(map[string]string)}

	var err error
	if def.TestName, err = stringField(raw, "test_name"); err != nil {
		return nil, err
	}

	if def.TableName, err = stringField(raw, "table_name"); err != nil {
		return nil, err
	}

	if def.InputPattern, err = stringField(raw, "input_pattern"); err != nil {
		return nil, err
	}

	if def.AssertionConfigs, err = assertionConfigs(raw["assertion_configs"]); err != nil {
		return nil, err
	}

	for key, value := range raw {
		if slices.Contains(requiredKeys, key) {
			continue
		}

		scalar, ok := formatScalar(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s", errUnsupportedExtraParam, key)
		}

		def.Extra[key] = scalar
	}

	return def, nil
}

func stringField(raw map[string]any, key string) (string, error) {
	s, ok := raw[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", errInvalidKeyType, key)
	}

	if s == "" {
		return "", fmt.Errorf("%w: %s", errEmptyRequiredKey, key)
	}

	return s, nil
}

func assertionConfigs(value any) ([]AssertionConfig, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, errInvalidAssertionConfigs
	}

	configs := make([]AssertionConfig, 0, len(list))

	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: assertion_configs[%d] is not a mapping", errInvalidKeyType, i)
		}

		rawQuery, ok := entry["query"]
		if !ok {
			return nil, fmt.Errorf("%w: assertion_configs[%d].query", errMissingRequiredKey, i)
		}

		query, err := stringList(rawQuery)
		if err != nil {
			return nil, fmt.Errorf("assertion_configs[%d]: %w", i, err)
		}

		rawExpected, ok := entry["expected_result"]
		if !ok {
			return nil, fmt.Errorf("%w: assertion_configs[%d].expected_result", errMissingRequiredKey, i)
		}

		expected, ok := rawExpected.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: assertion_configs[%d]", errInvalidExpectedResult, i)
		}

		configs = append(configs, AssertionConfig{
			Query:          query,
			ExpectedResult: expected,
		})
	}

	return configs, nil
}

func stringList(value any) ([]string, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, errInvalidQueryFragment
	}

	fragments := make([]string, 0, len(list))

	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errInvalidQueryFragment
		}

		fragments = append(fragments, s)
	}

	return fragments, nil
}

// formatScalar renders a scalar config value as a launch argument.
// Integral floats come from JSON number decoding and are rendered without
// an exponent or fraction.
func formatScalar(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
