package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "caiyun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestConfigSchemaCommand(t *testing.T) {
	out, err := execute(t, "config", "schema")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "caiyun configuration", doc["title"])
}

func TestDetectCommand(t *testing.T) {
	path := writeConfig(t, "host:\n  family: sandbox\n")
	out, err := execute(t, "--config", path, "detect", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"family":"sandbox","push":false,"intercept":false}`, out)
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	path := writeConfig(t, "host:\n  family: browser\n")
	_, err := execute(t, "--config", path, "config", "validate")
	assert.Error(t, err)
}

func TestInterceptCommandStoresLocation(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "host:\n  family: general\n  data_dir: "+dir+"\n")
	_, err := execute(t, "--config", path, "intercept", "https://example.com/geocode/30.5/114.3/")
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "caiyun.json"))
	require.NoError(t, err)
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, 30.5, doc["location"]["latitude"])
	assert.Equal(t, 114.3, doc["location"]["longitude"])
}

func TestInterceptEmitsResultOnGeneralHost(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "host:\n  family: general\n  data_dir: "+dir+"\n")
	out, err := execute(t, "--config", path, "intercept", "--emit-result", "https://example.com/geocode/30.5/114.3/")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	var c map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &c))
}

func TestServeRequiresConfig(t *testing.T) {
	_, err := execute(t, "serve")
	assert.Error(t, err)
}
