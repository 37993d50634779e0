package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Headless bool   `json:"headless"`
	DebugDir string `json:"debug_dir"`
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json5")

	err := os.WriteFile(path, []byte(`{
	// comments are fine in json5
	headless: true,
	debug_dir: "debug_output",
}`), 0644)
	require.NoError(t, err)

	config, err := ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.True(t, config.Headless)
	require.Equal(t, "debug_output", config.DebugDir)
}

func TestReadConfigMergesLocalOverride(t *testing.T) {
	dir := t.TempDir()

	err := os.WriteFile(
		filepath.Join(dir, "app.json5"),
		[]byte(`{debug_dir: "debug_output"}`),
		0644,
	)
	require.NoError(t, err)
	err = os.WriteFile(
		filepath.Join(dir, "app.local.json5"),
		[]byte(`{headless: true, debug_dir: "/tmp/overridden"}`),
		0644,
	)
	require.NoError(t, err)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.True(t, config.Headless)
	require.Equal(t, "/tmp/overridden", config.DebugDir)
}

func TestReadConfigLocalOnly(t *testing.T) {
	dir := t.TempDir()

	err := os.WriteFile(
		filepath.Join(dir, "app.local.json5"),
		[]byte(`{headless: true}`),
		0644,
	)
	require.NoError(t, err)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.True(t, config.Headless)
}

func TestReadConfigMissing(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadConfigEmptyFileCountsAsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json5")

	err := os.WriteFile(path, nil, 0644)
	require.NoError(t, err)

	_, err = ReadConfig[testConfig](path)
	require.True(t, os.IsNotExist(err))
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	err := os.MkdirAll(nested, 0755)
	require.NoError(t, err)

	err = os.WriteFile(
		filepath.Join(root, "app.json5"),
		[]byte(`{debug_dir: "from_ancestor"}`),
		0644,
	)
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	defer os.Chdir(cwd)

	config, err := ReadRecursively[testConfig]("app.json5")
	require.NoError(t, err)
	require.Equal(t, "from_ancestor", config.DebugDir)
}
