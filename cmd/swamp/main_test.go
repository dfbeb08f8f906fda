package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "{}", formatCounts(nil))
	assert.Equal(t, "{MetaData: 1, Passed: 3}", formatCounts(map[string]int{"Passed": 3, "MetaData": 1}))
}

func TestDatabaseName(t *testing.T) {
	assert.Equal(t, "ceden", databaseName("postgres://u:p@db.example.org:5432/ceden?sslmode=require"))
	assert.Equal(t, "", databaseName("://bad"))
}

func TestLoadCodeTables(t *testing.T) {
	tables, err := loadCodeTables("")
	require.NoError(t, err)
	assert.NotEmpty(t, tables.Columns())

	_, err = loadCodeTables(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: test\ntables:\n  QACode:\n    codes:\n      None: 1\n"), 0o644))
	tables, err = loadCodeTables(path)
	require.NoError(t, err)
	assert.Equal(t, "test", tables.Version())
	assert.Equal(t, []string{"QACode"}, tables.Columns())
}

func TestTablesCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"tables", "--env-file", "", "--column", "StationCode"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())

	var doc struct {
		Version string `yaml:"version"`
		Tables  map[string]struct {
			Codes map[string]int `yaml:"codes"`
		} `yaml:"tables"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc))
	assert.NotEmpty(t, doc.Version)
	require.Len(t, doc.Tables, 1)
	assert.Equal(t, 0, doc.Tables["StationCode"].Codes["LABQA"])
}
