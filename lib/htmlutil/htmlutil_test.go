package htmlutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestGetText(t *testing.T) {
	root, err := html.Parse(strings.NewReader(
		`<table><tr><td>COMPRA <b>FALABELLA</b></td></tr></table>`,
	))
	require.NoError(t, err)
	require.Equal(t, "COMPRA FALABELLA", GetText(root))
}

func TestReduce(t *testing.T) {
	in := `<!-- tracking -->
<html><head>
<style>.a { color: red }</style>
<script>window.dataLayer = []</script>
</head><body>
<div>saldo disponible</div>

<script src="analytics.js"></script>
</body></html>`

	out, err := Reduce(in)
	require.NoError(t, err)

	require.Contains(t, out, "saldo disponible")
	require.NotContains(t, out, "script")
	require.NotContains(t, out, "style")
	require.NotContains(t, out, "tracking")
	require.NotContains(t, out, "\n\n")
}

func TestReduceIdempotent(t *testing.T) {
	in := `<html><body><script>x()</script><p>hola</p></body></html>`
	once, err := Reduce(in)
	require.NoError(t, err)
	twice, err := Reduce(once)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestReduceDir(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(inputDir, "cl_estado"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(inputDir, "cl_estado", "login.html"),
		[]byte(`<html><body><script>a()</script><p>rut</p></body></html>`),
		0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(inputDir, "notes.txt"),
		[]byte("ignored"),
		0o644,
	))

	written, err := ReduceDir(context.Background(), inputDir, outputDir)
	require.NoError(t, err)
	require.Equal(t, 1, written)

	reduced, err := os.ReadFile(filepath.Join(outputDir, "cl_estado", "login.html"))
	require.NoError(t, err)
	require.Contains(t, string(reduced), "rut")
	require.NotContains(t, string(reduced), "script")

	_, err = os.Stat(filepath.Join(outputDir, "notes.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestReduceDirSkipsNestedOutput(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := filepath.Join(inputDir, "reduced")

	require.NoError(t, os.WriteFile(
		filepath.Join(inputDir, "page.html"),
		[]byte(`<html><body><p>x</p></body></html>`),
		0o644,
	))

	written, err := ReduceDir(context.Background(), inputDir, outputDir)
	require.NoError(t, err)
	require.Equal(t, 1, written)

	// a second run must not descend into its own output
	written, err = ReduceDir(context.Background(), inputDir, outputDir)
	require.NoError(t, err)
	require.Equal(t, 1, written)
}
