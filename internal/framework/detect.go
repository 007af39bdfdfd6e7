package framework

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
	"github.com/steveyegge/seoloop/internal/types"
	"golang.org/x/mod/modfile"
)

// Detection is the result of framework detection.
type Detection struct {
	Framework types.Framework
	Version   string // declared version (range stripped), empty when unknown
	Variant   string // e.g. "app-router" for Next.js
}

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (p packageJSON) dep(name string) (string, bool) {
	if v, ok := p.Dependencies[name]; ok {
		return v, true
	}
	v, ok := p.DevDependencies[name]
	return v, ok
}

// npmSignatures are checked in order; the first package found wins.
var npmSignatures = []struct {
	pkg string
	fw  types.Framework
}{
	{"next", types.FrameworkNext},
	{"nuxt", types.FrameworkNuxt},
	{"@sveltejs/kit", types.FrameworkSvelteKit},
	{"astro", types.FrameworkAstro},
	{"gatsby", types.FrameworkGatsby},
}

// Detect identifies the framework of the repository at root. Unrecognized
// repositories are FrameworkUnknown with a nil error; an unreadable
// manifest is a *ProfileError.
func Detect(root string) (Detection, error) {
	pkgPath := filepath.Join(root, "package.json")
	if data, err := os.ReadFile(pkgPath); err == nil {
		var pkg packageJSON
		if err := json.Unmarshal(data, &pkg); err != nil {
			return Detection{Framework: types.FrameworkUnknown}, &ProfileError{Path: "package.json", Err: err}
		}
		for _, sig := range npmSignatures {
			declared, ok := pkg.dep(sig.pkg)
			if !ok {
				continue
			}
			d := Detection{Framework: sig.fw, Version: cleanVersion(declared)}
			if sig.fw == types.FrameworkNext {
				d.Variant = nextVariant(root, declared)
			}
			return d, nil
		}
	} else if !os.IsNotExist(err) {
		return Detection{Framework: types.FrameworkUnknown}, &ProfileError{Path: "package.json", Err: err}
	}

	if ok, version, err := detectHugo(root); err != nil {
		return Detection{Framework: types.FrameworkUnknown}, err
	} else if ok {
		return Detection{Framework: types.FrameworkHugo, Version: version}, nil
	}

	if fileExists(filepath.Join(root, "index.html")) {
		return Detection{Framework: types.FrameworkHTML}, nil
	}

	return Detection{Framework: types.FrameworkUnknown}, nil
}

// cleanVersion turns an npm range like "^14.1.0" into "14.1.0" when it can.
func cleanVersion(declared string) string {
	if v := coerce(declared); v != nil {
		return v.String()
	}
	return strings.TrimSpace(declared)
}

func coerce(declared string) *semver.Version {
	s := strings.TrimSpace(declared)
	s = strings.TrimLeft(s, "^~>=< v")
	if i := strings.IndexAny(s, " |"); i >= 0 {
		s = s[:i]
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil
	}
	return v
}

// appRouterConstraint matches Next.js releases that ship the app router.
var appRouterConstraint, _ = semver.NewConstraint(">= 13.0.0-0")

func nextVariant(root, declared string) string {
	hasApp := dirExists(filepath.Join(root, "app")) || dirExists(filepath.Join(root, "src", "app"))
	if !hasApp {
		return "pages-router"
	}
	v := coerce(declared)
	if v == nil || appRouterConstraint.Check(v) {
		return "app-router"
	}
	return "pages-router"
}

var hugoConfigs = []string{
	"hugo.toml", "hugo.yaml", "hugo.yml", "hugo.json",
	"config.toml", "config.yaml", "config.yml",
	filepath.Join("config", "_default", "hugo.toml"),
	filepath.Join("config", "_default", "config.toml"),
}

func detectHugo(root string) (bool, string, error) {
	for _, name := range hugoConfigs {
		if !fileExists(filepath.Join(root, name)) {
			continue
		}
		// Only hugo.* is specific; config.* also needs a Hugo layout
		if strings.HasPrefix(filepath.Base(name), "hugo.") ||
			dirExists(filepath.Join(root, "content")) || dirExists(filepath.Join(root, "layouts")) {
			return true, hugoMinVersion(filepath.Join(root, name)), nil
		}
	}

	// Hugo Modules sites carry a go.mod requiring Hugo theme modules
	goModPath := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(goModPath)
	if err != nil {
		return false, "", nil
	}
	mf, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		return false, "", &ProfileError{Path: "go.mod", Err: err}
	}
	if !dirExists(filepath.Join(root, "content")) {
		return false, "", nil
	}
	for _, req := range mf.Require {
		if strings.Contains(strings.ToLower(req.Mod.Path), "hugo") {
			return true, "", nil
		}
	}
	return false, "", nil
}

// hugoMinVersion reads module.hugoVersion.min from a TOML site config.
func hugoMinVersion(configPath string) string {
	if filepath.Ext(configPath) != ".toml" {
		return ""
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return ""
	}
	var cfg struct {
		Module struct {
			HugoVersion struct {
				Min string `toml:"min"`
			} `toml:"hugoVersion"`
		} `toml:"module"`
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return ""
	}
	return cleanVersion(cfg.Module.HugoVersion.Min)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// String formats a detection for logs
func (d Detection) String() string {
	s := string(d.Framework)
	if d.Version != "" {
		s += "@" + d.Version
	}
	if d.Variant != "" {
		s += fmt.Sprintf(" (%s)", d.Variant)
	}
	return s
}
