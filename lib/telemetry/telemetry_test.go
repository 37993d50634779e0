package telemetry

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// chdir moves the test into dir so the config search starts somewhere
// without a telemetry.json5 up the chain.
func chdir(t *testing.T, dir string) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })
}

func TestSetupWithoutEndpoints(t *testing.T) {
	tel, err := Setup(context.Background(), "fintself-test", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetupFromEnvWithoutConfigFile(t *testing.T) {
	chdir(t, t.TempDir())

	tel, err := SetupFromEnv(context.Background(), "fintself-test")
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
}

func TestSetupForTestingRunsOnce(t *testing.T) {
	chdir(t, t.TempDir())

	shutdown := SetupForTesting(t, "fintself-test-once")
	defer shutdown()
	require.True(t, setupTestEnvironments["fintself-test-once"])

	again := SetupForTesting(t, "fintself-test-once")
	again()
}
