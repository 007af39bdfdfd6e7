package framework

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/steveyegge/seoloop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files (and their parents) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		want    types.Framework
		version string
		variant string
	}{
		{
			name: "next app router",
			files: map[string]string{
				"package.json": `{"dependencies":{"next":"^14.1.0","react":"18.2.0"}}`,
				"app/page.tsx": "export default function Home() { return null }",
			},
			want: types.FrameworkNext, version: "14.1.0", variant: "app-router",
		},
		{
			name: "old next with app dir stays on pages router",
			files: map[string]string{
				"package.json":   `{"dependencies":{"next":"12.3.0"}}`,
				"app/page.tsx":   "",
				"pages/index.js": "",
			},
			want: types.FrameworkNext, version: "12.3.0", variant: "pages-router",
		},
		{
			name: "next without app dir",
			files: map[string]string{
				"package.json":   `{"dependencies":{"next":"latest"}}`,
				"pages/index.js": "",
			},
			want: types.FrameworkNext, version: "latest", variant: "pages-router",
		},
		{
			name:  "nuxt",
			files: map[string]string{"package.json": `{"devDependencies":{"nuxt":"^3.10.0"}}`},
			want:  types.FrameworkNuxt, version: "3.10.0",
		},
		{
			name:  "sveltekit",
			files: map[string]string{"package.json": `{"devDependencies":{"@sveltejs/kit":"^2.0.0","svelte":"^4"}}`},
			want:  types.FrameworkSvelteKit, version: "2.0.0",
		},
		{
			name:  "astro wins over gatsby by order",
			files: map[string]string{"package.json": `{"dependencies":{"gatsby":"5.0.0","astro":"4.2.1"}}`},
			want:  types.FrameworkAstro, version: "4.2.1",
		},
		{
			name:  "gatsby",
			files: map[string]string{"package.json": `{"dependencies":{"gatsby":"~5.13.0"}}`},
			want:  types.FrameworkGatsby, version: "5.13.0",
		},
		{
			name: "hugo toml config",
			files: map[string]string{
				"hugo.toml": "baseURL = 'https://example.org/'\n[module.hugoVersion]\nmin = \"0.110.0\"\n",
			},
			want: types.FrameworkHugo, version: "0.110.0",
		},
		{
			name: "legacy hugo config needs content",
			files: map[string]string{
				"config.yaml":           "title: x\n",
				"content/posts/hello.md": "# hi",
			},
			want: types.FrameworkHugo,
		},
		{
			name: "hugo modules",
			files: map[string]string{
				"go.mod":       "module example.org/site\n\ngo 1.21\n\nrequire github.com/theNewDynamic/gohugo-theme-ananke v1.0.0 // indirect\n",
				"content/a.md": "",
			},
			want: types.FrameworkHugo,
		},
		{
			name:  "plain html",
			files: map[string]string{"index.html": "<html></html>"},
			want:  types.FrameworkHTML,
		},
		{
			name:  "package.json without a known framework falls through to html",
			files: map[string]string{"package.json": `{"dependencies":{"lodash":"4"}}`, "index.html": ""},
			want:  types.FrameworkHTML,
		},
		{
			name:  "unknown",
			files: map[string]string{"README.md": "hello"},
			want:  types.FrameworkUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, tt.files)

			d, err := Detect(root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Framework)
			assert.Equal(t, tt.version, d.Version)
			assert.Equal(t, tt.variant, d.Variant)
		})
	}
}

func TestDetectBadPackageJSON(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"package.json": `{"dependencies":`})

	d, err := Detect(root)
	require.Error(t, err)
	var perr *ProfileError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "package.json", perr.Path)
	assert.Equal(t, types.FrameworkUnknown, d.Framework)
}

func TestDetectionString(t *testing.T) {
	d := Detection{Framework: types.FrameworkNext, Version: "14.1.0", Variant: "app-router"}
	assert.Equal(t, "next@14.1.0 (app-router)", d.String())
	assert.Equal(t, "unknown", Detection{Framework: types.FrameworkUnknown}.String())
}

func TestLookup(t *testing.T) {
	for _, fw := range []types.Framework{
		types.FrameworkNext, types.FrameworkNuxt, types.FrameworkSvelteKit,
		types.FrameworkAstro, types.FrameworkGatsby, types.FrameworkHugo, types.FrameworkHTML,
	} {
		c, ok := Lookup(fw)
		require.True(t, ok, fw)
		assert.Equal(t, fw, c.Framework())
	}
	_, ok := Lookup(types.FrameworkUnknown)
	assert.False(t, ok)
}
