package framework

import (
	"testing"

	"github.com/steveyegge/seoloop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html lang="en">
<head>
  <title>Acme &amp; Co</title>
  <meta name="description" content="We make anvils">
  <meta property="og:image" content="/og.png">
  <script type="application/ld+json">{"@context":"https://schema.org","@type":"Organization","name":"Acme"}</script>
</head>
<body>
  <h1>Welcome home</h1>
  <p>Hello world from the test page.</p>
  <img src="/a.png">
  <img src="/b.png" alt="An anvil">
  <script>const x = 1;</script>
</body>
</html>`

func TestScanMarkup(t *testing.T) {
	m := scanMarkup([]byte(samplePage))

	assert.Equal(t, "Acme & Co", m.Title)
	assert.Equal(t, "We make anvils", m.Description)
	assert.Equal(t, "/og.png", m.OGImage)
	assert.Equal(t, "Welcome home", m.H1)
	assert.Equal(t, []string{"Organization"}, m.SchemaTypes)
	assert.Equal(t, 8, m.WordCount)
	assert.Equal(t, `<head>`, m.headTag)
	assert.Equal(t, `<html lang="en">`, m.htmlTag)

	require.Len(t, m.Images, 2)
	assert.Equal(t, "/a.png", m.Images[0].Src)
	assert.False(t, m.Images[0].HasAlt)
	assert.Equal(t, `<img src="/a.png">`, m.Images[0].Tag)
	assert.True(t, m.Images[1].HasAlt)
	assert.Equal(t, "An anvil", m.Images[1].Alt)
}

func TestScanMarkupComponent(t *testing.T) {
	m := scanMarkup([]byte(`<Layout title="Home" description={desc}>
  <Image src={hero} />
  <p>Copy</p>
</Layout>`))
	assert.Equal(t, `<Layout title="Home" description={desc}>`, m.component)
	assert.Equal(t, "Home", m.componentAttrs["title"])
	require.Len(t, m.Images, 1)
}

func TestJSONLDTypes(t *testing.T) {
	assert.Equal(t, []string{"WebSite", "Organization"},
		jsonLDTypes(`{"@graph":[{"@type":"WebSite"},{"@type":["Organization","WebSite"]}]}`))
	assert.Equal(t, []string{"JSON-LD"}, jsonLDTypes(`{ "@type": {{ .Type }} }`))
	assert.Nil(t, jsonLDTypes("  "))
}

func TestAltPatch(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want string
	}{
		{"html", `<img src="/a.png">`, `<img alt="A &#34;red&#34; cat" src="/a.png">`},
		{"jsx self closing", `<Image src={hero}/>`, `<Image alt="A &#34;red&#34; cat" src={hero}/>`},
		{"markdown", `![](/a.png)`, `![A "red" cat](/a.png)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := AltPatch(types.ImageRef{Tag: tt.tag}, `A "red" cat`)
			require.NoError(t, err)
			assert.Equal(t, tt.tag, p.Find)
			assert.Equal(t, tt.want, p.Replace)
		})
	}

	_, err := AltPatch(types.ImageRef{}, "x")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestReplaceInMarkup(t *testing.T) {
	m := scanMarkup([]byte(samplePage))

	p, ok := replaceInMarkup(m, FieldTitle, "Acme <Anvils>")
	require.True(t, ok)
	assert.Equal(t, "<title>Acme &amp; Co</title>", p.Find)
	assert.Equal(t, "<title>Acme &lt;Anvils&gt;</title>", p.Replace)

	p, ok = replaceInMarkup(m, FieldDescription, "Anvils since 1949")
	require.True(t, ok)
	assert.Equal(t, `<meta name="description" content="We make anvils">`, p.Find)
	assert.Equal(t, `<meta name="description" content="Anvils since 1949">`, p.Replace)

	_, ok = replaceInMarkup(scanMarkup([]byte("<p>x</p>")), FieldTitle, "x")
	assert.False(t, ok)
}

func TestReplaceLiteral(t *testing.T) {
	src := "const meta = { title: 'Old', other: 1 }"
	p, ok := replaceLiteral(src, "title", "Old", `New "one"`)
	require.True(t, ok)
	assert.Equal(t, "title: 'Old'", p.Find)
	assert.Equal(t, `title: "New \"one\""`, p.Replace)

	_, ok = replaceLiteral(src, "title", "Missing", "x")
	assert.False(t, ok)
}

func TestFrontMatter(t *testing.T) {
	yamlDoc := []byte("---\ntitle: Hello\ntags: [a, b]\n---\n# Hello\n\nSome words here.\n![](/a.png)\n")
	fm, ok := splitFrontMatter(yamlDoc)
	require.True(t, ok)
	assert.Equal(t, "---", fm.delim)
	assert.Equal(t, "Hello", fm.str("title"))
	assert.Equal(t, "# Hello\n\nSome words here.\n![](/a.png)\n", fm.body)

	tomlDoc := []byte("+++\ntitle = \"Hola\"\ndescription = \"Desc\"\n+++\nBody\n")
	fm, ok = splitFrontMatter(tomlDoc)
	require.True(t, ok)
	assert.Equal(t, "Hola", fm.str("title"))
	assert.Equal(t, "Desc", fm.str("description"))

	_, ok = splitFrontMatter([]byte("# No front matter\n"))
	assert.False(t, ok)
	_, ok = splitFrontMatter([]byte("---\ntitle: unterminated\n"))
	assert.False(t, ok)
}

func TestMarkdownMeta(t *testing.T) {
	meta := markdownMeta([]byte("---\ntitle: Hello\nimage: /cover.png\n---\n# Hello\n\nSome words here.\n![](/a.png)\n"))
	assert.Equal(t, "Hello", meta.Title)
	assert.Equal(t, "/cover.png", meta.OGImage)
	assert.Equal(t, "Hello", meta.H1)
	assert.Equal(t, 4, meta.WordCount)
	require.Len(t, meta.Images, 1)
	assert.Equal(t, "![](/a.png)", meta.Images[0].Tag)
	assert.False(t, meta.Images[0].HasAlt)
}

func TestFrontMatterPatch(t *testing.T) {
	doc := []byte("---\ntitle: Hello\n---\nBody\n")

	p, err := frontMatterPatch(doc, "description", "A page")
	require.NoError(t, err)
	assert.Equal(t, "---\n", p.Find)
	assert.Equal(t, "---\ndescription: \"A page\"\n", p.Replace)

	p, err = frontMatterPatch(doc, "title", "Hi there")
	require.NoError(t, err)
	assert.Equal(t, "title: Hello", p.Find)
	assert.Equal(t, `title: "Hi there"`, p.Replace)

	p, err = frontMatterPatch([]byte("+++\ntitle = \"Hola\"\n+++\n"), "title", "Adios")
	require.NoError(t, err)
	assert.Equal(t, `title = "Hola"`, p.Find)
	assert.Equal(t, `title = "Adios"`, p.Replace)

	p, err = frontMatterPatch([]byte("# Heading\nBody\n"), "title", "T")
	require.NoError(t, err)
	assert.Equal(t, "# Heading\n", p.Find)
	assert.Equal(t, "---\ntitle: \"T\"\n---\n\n# Heading\n", p.Replace)

	_, err = frontMatterPatch([]byte("---\ntitle: [a, b]\n---\n"), "title", "x")
	assert.ErrorIs(t, err, ErrUnsupported)
}
