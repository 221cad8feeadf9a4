package testdef

import (
	"testing"
	"testing/fstest"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

const validJSON = `{
  "test_name": "platinum-genomes",
  "table_name": "platinum_genomes",
  "input_pattern": "gs://test-data/platinum/*.vcf",
  "runner": "DataflowRunner",
  "num_workers": 2,
  "assertion_configs": [
    {
      "query": ["NUM_ROWS_QUERY"],
      "expected_result": {"num_rows": 5}
    },
    {
      "query": ["SELECT COUNT(0) AS cnt", "FROM {TABLE_NAME}"],
      "expected_result": {"cnt": 5}
    }
  ]
}`

const validYAML = `test_name: platinum-genomes
table_name: platinum_genomes
input_pattern: gs://test-data/platinum/*.vcf
runner: DataflowRunner
num_workers: 2
assertion_configs:
  - query: [NUM_ROWS_QUERY]
    expected_result:
      num_rows: 5
  - query: ["SELECT COUNT(0) AS cnt", "FROM {TABLE_NAME}"]
    expected_result:
      cnt: 5
`

func TestLoadFile_JSONAndYAMLParity(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"tests/platinum.json": &fstest.MapFile{Data: []byte(validJSON)},
		"tests/platinum.yaml": &fstest.MapFile{Data: []byte(validYAML)},
	}

	l := NewLoader(newTestLogger(), fsys)

	for _, path := range []string{"tests/platinum.json", "tests/platinum.yaml"} {
		t.Run(path, func(t *testing.T) {
			def, err := l.LoadFile(path)
			require.NoError(t, err)

			assert.Equal(t, "platinum-genomes", def.TestName)
			assert.Equal(t, "platinum_genomes", def.TableName)
			assert.Equal(t, "gs://test-data/platinum/*.vcf", def.InputPattern)

			require.Len(t, def.AssertionConfigs, 2)
			assert.Equal(t, []string{"NUM_ROWS_QUERY"}, def.AssertionConfigs[0].Query)
			require.Contains(t, def.AssertionConfigs[0].ExpectedResult, "num_rows")

			// Unknown top-level fields pass through as launch parameters.
			assert.Equal(t, map[string]string{
				"runner":      "DataflowRunner",
				"num_workers": "2",
			}, def.Extra)
		})
	}
}

func TestLoadFile_MissingRequiredKeyNamesFileAndKey(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"tests/broken.json": &fstest.MapFile{Data: []byte(`{
  "test_name": "broken",
  "input_pattern": "gs://test-data/*.vcf",
  "assertion_configs": []
}`)},
	}

	l := NewLoader(newTestLogger(), fsys)

	_, err := l.LoadFile("tests/broken.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissingRequiredKey)
	assert.Contains(t, err.Error(), "table_name")
	assert.Contains(t, err.Error(), "tests/broken.json")
}

func TestLoadFile_AssertionConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		errIs   error
		errText string
	}{
		{
			name: "missing query",
			body: `{"test_name": "t", "table_name": "t", "input_pattern": "p",
				"assertion_configs": [{"expected_result": {"num_rows": 1}}]}`,
			errIs:   errMissingRequiredKey,
			errText: "query",
		},
		{
			name: "missing expected_result",
			body: `{"test_name": "t", "table_name": "t", "input_pattern": "p",
				"assertion_configs": [{"query": ["NUM_ROWS_QUERY"]}]}`,
			errIs:   errMissingRequiredKey,
			errText: "expected_result",
		},
		{
			name: "query not a string list",
			body: `{"test_name": "t", "table_name": "t", "input_pattern": "p",
				"assertion_configs": [{"query": "NUM_ROWS_QUERY", "expected_result": {"num_rows": 1}}]}`,
			errIs: errInvalidQueryFragment,
		},
		{
			name: "empty test name",
			body: `{"test_name": "", "table_name": "t", "input_pattern": "p",
				"assertion_configs": []}`,
			errIs:   errEmptyRequiredKey,
			errText: "test_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"tests/case.json": &fstest.MapFile{Data: []byte(tt.body)},
			}

			l := NewLoader(newTestLogger(), fsys)

			_, err := l.LoadFile("tests/case.json")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.errIs)

			if tt.errText != "" {
				assert.Contains(t, err.Error(), tt.errText)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	t.Run("walks subdirectories and skips non-definition files", func(t *testing.T) {
		fsys := fstest.MapFS{
			"tests/small/a.json": &fstest.MapFile{Data: []byte(validJSON)},
			"tests/large/b.yaml": &fstest.MapFile{Data: []byte(validYAML)},
			"tests/README.md":    &fstest.MapFile{Data: []byte("docs")},
		}

		l := NewLoader(newTestLogger(), fsys)

		defs, err := l.LoadDir("tests")
		require.NoError(t, err)
		assert.Len(t, defs, 2)
	})

	t.Run("empty directory is an error naming the directory", func(t *testing.T) {
		fsys := fstest.MapFS{
			"tests/README.md": &fstest.MapFile{Data: []byte("docs")},
		}

		l := NewLoader(newTestLogger(), fsys)

		_, err := l.LoadDir("tests")
		require.Error(t, err)
		assert.ErrorIs(t, err, errNoDefinitionsFound)
		assert.Contains(t, err.Error(), "tests")
	})

	t.Run("one malformed definition aborts the load", func(t *testing.T) {
		fsys := fstest.MapFS{
			"tests/good.json": &fstest.MapFile{Data: []byte(validJSON)},
			"tests/bad.json":  &fstest.MapFile{Data: []byte(`{"test_name": "x"}`)},
		}

		l := NewLoader(newTestLogger(), fsys)

		_, err := l.LoadDir("tests")
		require.Error(t, err)
		assert.ErrorIs(t, err, errMissingRequiredKey)
	})
}
