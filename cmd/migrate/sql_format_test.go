package main

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationName = regexp.MustCompile(`^(\d{5})_[a-z0-9_]+\.sql$`)

func TestSQLMigrations_Format(t *testing.T) {
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	dir := filepath.Clean(filepath.Join(filepath.Dir(thisFile), "..", "..", "db", "migrations"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	versions := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := migrationName.FindStringSubmatch(e.Name())
		if !assert.NotNil(t, m, "%s does not follow NNNNN_name.sql", e.Name()) {
			continue
		}
		if prev, dup := versions[m[1]]; dup {
			t.Errorf("%s reuses version %s from %s", e.Name(), m[1], prev)
		}
		versions[m[1]] = e.Name()

		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		s := string(b)
		up := strings.Index(s, "-- +goose Up")
		down := strings.Index(s, "-- +goose Down")
		assert.GreaterOrEqual(t, up, 0, "%s missing '-- +goose Up'", e.Name())
		assert.Greater(t, down, up, "%s needs '-- +goose Down' after the Up block", e.Name())
	}
	assert.NotEmpty(t, versions)
}
