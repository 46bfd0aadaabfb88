package db

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSanitizeFilename tests the filename sanitization function
func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple alphanumeric",
			input:    "document123",
			expected: "document123",
		},
		{
			name:     "with forward slash",
			input:    "user/123",
			expected: "user_123",
		},
		{
			name:     "with backslash",
			input:    "user\\123",
			expected: "user_123",
		},
		{
			name:     "with colon",
			input:    "process:2024-01-15",
			expected: "process_2024-01-15",
		},
		{
			name:     "with multiple invalid chars",
			input:    "data<test>:*?",
			expected: "data_test____",
		},
		{
			name:     "with quotes",
			input:    "file\"name",
			expected: "file_name",
		},
		{
			name:     "with pipe",
			input:    "data|pipe",
			expected: "data_pipe",
		},
		{
			name:     "very long filename",
			input:    string(make([]byte, 250)),
			expected: string(make([]byte, 200)),
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "all invalid characters",
			input:    "/*?<>:|\"\\",
			expected: "_________",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			assert.Equal(t, tt.expected, result)
			assert.LessOrEqual(t, len(result), 200, "result should not exceed 200 characters")
		})
	}
}

// TestSaveDocumentToFile tests the document file saving function
func TestSaveDocumentToFile(t *testing.T) {
	t.Run("successful save", func(t *testing.T) {
		tempDir := t.TempDir()
		filePath := filepath.Join(tempDir, "test_doc.json")

		doc := map[string]interface{}{
			"_id":   "test123",
			"name":  "Test Document",
			"value": 42,
		}

		err := saveDocumentToFile(doc, filePath)
		require.NoError(t, err)

		_, err = os.Stat(filePath)
		require.NoError(t, err)

		data, err := os.ReadFile(filePath)
		require.NoError(t, err)

		var savedDoc map[string]interface{}
		err = json.Unmarshal(data, &savedDoc)
		require.NoError(t, err)

		assert.Equal(t, "test123", savedDoc["_id"])
		assert.Equal(t, "Test Document", savedDoc["name"])
		assert.Equal(t, float64(42), savedDoc["value"])
	})

	t.Run("nested document", func(t *testing.T) {
		tempDir := t.TempDir()
		filePath := filepath.Join(tempDir, "nested_doc.json")

		doc := map[string]interface{}{
			"_id": "nested123",
			"metadata": map[string]interface{}{
				"created": "2024-01-01",
				"tags":    []string{"tag1", "tag2"},
			},
		}

		err := saveDocumentToFile(doc, filePath)
		require.NoError(t, err)

		data, err := os.ReadFile(filePath)
		require.NoError(t, err)

		var savedDoc map[string]interface{}
		err = json.Unmarshal(data, &savedDoc)
		require.NoError(t, err)

		assert.Equal(t, "nested123", savedDoc["_id"])
		metadata := savedDoc["metadata"].(map[string]interface{})
		assert.Equal(t, "2024-01-01", metadata["created"])
	})

	t.Run("invalid directory path", func(t *testing.T) {
		invalidPath := "/nonexistent/directory/that/does/not/exist/doc.json"

		doc := map[string]interface{}{
			"_id": "test",
		}

		err := saveDocumentToFile(doc, invalidPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create file")
	})

	t.Run("empty document", func(t *testing.T) {
		tempDir := t.TempDir()
		filePath := filepath.Join(tempDir, "empty_doc.json")

		doc := map[string]interface{}{}

		err := saveDocumentToFile(doc, filePath)
		require.NoError(t, err)

		data, err := os.ReadFile(filePath)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	})
}

// TestNewCouchDBServiceFromConfig_Validation tests configuration validation
// without requiring a live CouchDB instance: malformed connection details
// fail fast with a wrapped error rather than a nil-deref panic downstream.
func TestNewCouchDBServiceFromConfig_Validation(t *testing.T) {
	t.Run("empty URL", func(t *testing.T) {
		service, err := NewCouchDBServiceFromConfig(CouchDBConfig{
			URL:      "",
			Database: "testdb",
		})
		assert.Error(t, err)
		assert.Nil(t, service)
	})

	t.Run("database missing and not auto-created", func(t *testing.T) {
		service, err := NewCouchDBServiceFromConfig(CouchDBConfig{
			URL:             "http://localhost:5984",
			Database:        "does-not-exist",
			CreateIfMissing: false,
		})
		assert.Error(t, err)
		assert.Nil(t, service)
	})
}

// BenchmarkSanitizeFilename benchmarks filename sanitization
func BenchmarkSanitizeFilename(b *testing.B) {
	testCases := []string{
		"simple_filename",
		"complex/file:name*with?chars",
		string(make([]byte, 250)),
	}

	for _, tc := range testCases {
		b.Run(tc[:min(len(tc), 20)], func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				sanitizeFilename(tc)
			}
		})
	}
}

// BenchmarkSaveDocumentToFile benchmarks document file saving
func BenchmarkSaveDocumentToFile(b *testing.B) {
	tempDir := b.TempDir()

	doc := map[string]interface{}{
		"_id":         "bench-doc",
		"name":        "Benchmark Document",
		"value":       42,
		"description": "This is a benchmark document",
		"metadata": map[string]interface{}{
			"created": "2024-01-01",
			"tags":    []string{"tag1", "tag2", "tag3"},
		},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		filePath := filepath.Join(tempDir, "bench_doc_"+string(rune(i))+".json")
		_ = saveDocumentToFile(doc, filePath)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}


