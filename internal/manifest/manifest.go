// Package manifest locates a project's entry points. It reads the optional
// dualpack.hcl manifest and resolves the listed entry points to absolute,
// platform-neutral paths.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/groove/dualpack/internal/ctxlog"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// DefaultFile is the manifest name looked up in the working directory.
const DefaultFile = "dualpack.hcl"

// Manifest describes one packaging run. ProjectRoot, OutputRoot, NodePaths
// and OutputDirs are absolute; EntryPoints stay as written and are turned
// into absolute paths by Resolve.
type Manifest struct {
	Path        string
	ProjectRoot string
	EntryPoints []string
	OutputRoot  string
	OutputDirs  map[string]string
	External    []string
	NodePaths   []string
	Engine      Engine
}

// Engine holds the settings shared by both output formats.
type Engine struct {
	Platform       string
	Target         string
	Bundle         bool
	Sourcemap      bool
	SourcesContent bool
	SourceRoot     string
}

type hclManifestFile struct {
	ProjectRoot *string           `hcl:"project_root,optional"`
	EntryPoints []string          `hcl:"entry_points,optional"`
	OutputRoot  *string           `hcl:"output_root,optional"`
	OutputDirs  map[string]string `hcl:"output_dirs,optional"`
	External    []string          `hcl:"external,optional"`
	NodePaths   []string          `hcl:"node_paths,optional"`
	Engine      *hclEngineBlock   `hcl:"engine,block"`
}

type hclEngineBlock struct {
	Platform       *string `hcl:"platform,optional"`
	Target         *string `hcl:"target,optional"`
	Bundle         *bool   `hcl:"bundle,optional"`
	Sourcemap      *bool   `hcl:"sourcemap,optional"`
	SourcesContent *bool   `hcl:"sources_content,optional"`
	SourceRoot     *string `hcl:"source_root,optional"`
}

// Defaults returns the manifest used when no file is present: a node build
// of src/index.ts into build/, with src/ on the module search path.
func Defaults(projectRoot string) *Manifest {
	root := Normalize(projectRoot, "")
	return &Manifest{
		ProjectRoot: root,
		EntryPoints: []string{"src/index.ts"},
		OutputRoot:  Normalize("build", root),
		NodePaths:   []string{Normalize("src", root)},
		Engine: Engine{
			Platform:       "node",
			Target:         "esnext",
			Bundle:         true,
			Sourcemap:      true,
			SourcesContent: true,
		},
	}
}

// Load reads the manifest at path. When the file does not exist and explicit
// is false, the defaults rooted at the manifest's directory are returned.
func Load(ctx context.Context, path string, explicit bool) (*Manifest, error) {
	logger := ctxlog.FromContext(ctx)
	if path == "" {
		path = DefaultFile
	}
	abs := Normalize(path, "")
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(abs)))

	if _, err := os.Stat(filepath.FromSlash(abs)); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			logger.Debug("No manifest found, using defaults.", "path", abs)
			return Defaults(dir), nil
		}
		return nil, &ConfigurationError{Path: abs, Err: err}
	}

	m, err := parse(abs, dir)
	if err != nil {
		return nil, &ConfigurationError{Path: abs, Err: err}
	}
	logger.Debug("Manifest loaded.", "path", abs, "entry_points", len(m.EntryPoints), "external", len(m.External))
	return m, nil
}

func parse(path, dir string) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filepath.FromSlash(path))
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse: %w", diags)
	}

	evalCtx := baseEvalContext(dir)

	// project_root is evaluated first so the remaining attributes can use it.
	content, _, diags := file.Body.PartialContent(&hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{{Name: "project_root"}},
	})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode project_root: %w", diags)
	}
	root := dir
	if attr, ok := content.Attributes["project_root"]; ok {
		var raw string
		if diags := gohcl.DecodeExpression(attr.Expr, evalCtx, &raw); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode project_root: %w", diags)
		}
		root = Normalize(raw, dir)
	}
	evalCtx.Variables["project_root"] = cty.StringVal(root)

	var decoded hclManifestFile
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &decoded); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode: %w", diags)
	}

	m := Defaults(root)
	m.Path = path
	if len(decoded.EntryPoints) > 0 {
		m.EntryPoints = decoded.EntryPoints
	}
	if decoded.OutputRoot != nil {
		m.OutputRoot = Normalize(*decoded.OutputRoot, root)
	}
	if len(decoded.OutputDirs) > 0 {
		m.OutputDirs = make(map[string]string, len(decoded.OutputDirs))
		for format, d := range decoded.OutputDirs {
			m.OutputDirs[format] = Normalize(d, root)
		}
	}
	m.External = dedupe(decoded.External)
	if decoded.NodePaths != nil {
		m.NodePaths = make([]string, 0, len(decoded.NodePaths))
		for _, p := range decoded.NodePaths {
			m.NodePaths = append(m.NodePaths, Normalize(p, root))
		}
	}
	if e := decoded.Engine; e != nil {
		if e.Platform != nil {
			m.Engine.Platform = *e.Platform
		}
		if e.Target != nil {
			m.Engine.Target = *e.Target
		}
		if e.Bundle != nil {
			m.Engine.Bundle = *e.Bundle
		}
		if e.Sourcemap != nil {
			m.Engine.Sourcemap = *e.Sourcemap
		}
		if e.SourcesContent != nil {
			m.Engine.SourcesContent = *e.SourcesContent
		}
		if e.SourceRoot != nil {
			m.Engine.SourceRoot = *e.SourceRoot
		}
	}
	return m, nil
}

func baseEvalContext(dir string) *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok && name != "" {
			env[name] = cty.StringVal(value)
		}
	}
	envVal := cty.EmptyObjectVal
	if len(env) > 0 {
		envVal = cty.ObjectVal(env)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"manifest_dir": cty.StringVal(dir),
			"project_root": cty.StringVal(dir),
			"env":          envVal,
		},
		Functions: map[string]function.Function{
			"concat": stdlib.ConcatFunc,
			"format": stdlib.FormatFunc,
			"join":   stdlib.JoinFunc,
			"lower":  stdlib.LowerFunc,
			"upper":  stdlib.UpperFunc,
		},
	}
}

// dedupe returns names as a sorted set.
func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MergeExternal adds names to the manifest's external set.
func (m *Manifest) MergeExternal(names ...string) {
	m.External = dedupe(append(append([]string(nil), m.External...), names...))
}

// Reroot moves the manifest to root. Output and search paths that lie under
// the old project root keep their position relative to it; paths outside it
// are left alone.
func (m *Manifest) Reroot(root string) {
	root = Normalize(root, "")
	old := strings.TrimSuffix(m.ProjectRoot, "/")
	rebase := func(p string) string {
		if p == old {
			return root
		}
		if rel, ok := strings.CutPrefix(p, old+"/"); ok && old != "" {
			return Normalize(rel, root)
		}
		return p
	}

	m.OutputRoot = rebase(m.OutputRoot)
	for i, p := range m.NodePaths {
		m.NodePaths[i] = rebase(p)
	}
	for format, p := range m.OutputDirs {
		m.OutputDirs[format] = rebase(p)
	}
	m.ProjectRoot = root
}
