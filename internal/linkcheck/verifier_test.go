package linkcheck

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func TestExtractLinksClassification(t *testing.T) {
	page := `<html><body>
<a href="guide/index.html">Guide</a>
<a href="https://example.com/">External</a>
<a href="//cdn.example.com/x.js">Protocol relative</a>
<a href="mailto:docs@example.com">Mail</a>
<a href="#section">Fragment</a>
<img src="logo.png">
<script src="app.js"></script>
<link href="style.css">
</body></html>`

	links, err := extractFromReader(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, links, 8)

	internal := 0
	for _, l := range links {
		if l.Internal {
			internal++
		}
	}
	assert.Equal(t, 4, internal)
}

func TestVerifyCleanSite(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"index.html":       `<a href="guide/">Guide</a><img src="logo.png">`,
		"logo.png":         "png",
		"guide/index.html": `<a href="../index.html">Back</a>`,
	})

	broken, err := NewVerifier(dir).Verify(context.Background())
	require.NoError(t, err)
	assert.Empty(t, broken)
}

func TestVerifyReportsBrokenLinks(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"index.html":       `<a href="missing.html">Gone</a><a href="guide/page.html">Also gone</a>`,
		"guide/index.html": `<a href="https://example.com/ok">External stays unchecked</a>`,
	})

	broken, err := NewVerifier(dir).Verify(context.Background())
	require.NoError(t, err)
	require.Len(t, broken, 2)
	assert.Equal(t, "index.html", broken[0].Page)
	assert.Equal(t, "missing.html", broken[0].Target)
	assert.Equal(t, "guide/page.html", broken[1].Target)
}

func TestVerifyRootedLinks(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"index.html":       `<a href="/guide/index.html">Rooted</a><a href="/nope.html">Broken</a>`,
		"guide/index.html": "ok",
	})

	broken, err := NewVerifier(dir).Verify(context.Background())
	require.NoError(t, err)
	require.Len(t, broken, 1)
	assert.Equal(t, "nope.html", broken[0].Target)
}

func TestVerifySkipsLinksOutsideTree(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"index.html": `<a href="../outside.html">Outside</a>`,
	})

	broken, err := NewVerifier(dir).Verify(context.Background())
	require.NoError(t, err)
	assert.Empty(t, broken)
}
