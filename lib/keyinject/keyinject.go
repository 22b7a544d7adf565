// Package keyinject stamps synchronization keys onto hxstate call sites.
//
// Server and client must agree on the key of every synchronized value.
// Rather than deriving keys at run time, `hxstate keys` rewrites source so
// each NewRef, NewRefFunc, NewShallowRef, NewShallowRefFunc and NewPromise
// call carries a string literal key derived from its file and position:
//
//	count := hxstate.NewRef(p, 0)
//
// becomes
//
//	count := hxstate.NewRef(p, 0, "count-1xQ4mZbT0aKc")
//
// Calls that already pass a key are left alone, so the rewrite is
// idempotent.
package keyinject

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// maxArgs is the argument count of a call that already carries a key:
// page, value and key.
const maxArgs = 3

// keyLen is the number of base64url characters kept from the hash.
const keyLen = 12

// Callees are the function names whose call sites receive keys.
var Callees = []string{"NewRef", "NewRefFunc", "NewShallowRef", "NewShallowRefFunc", "NewPromise"}

// Options configures the injector.
type Options struct {
	// DryRun reports call sites without writing files.
	DryRun bool

	// Production omits the variable-name prefix, giving shorter keys.
	Production bool

	// Root is the directory file paths are made relative to before hashing
	// (default: the working directory). Keys only stay stable while Root
	// does.
	Root string
}

// Site is one call site that received (or would receive) a key.
type Site struct {
	File   string
	Line   int
	Callee string
	Key    string
}

func (s Site) String() string {
	return fmt.Sprintf("%s:%d: %s %q", s.File, s.Line, s.Callee, s.Key)
}

// Injector rewrites Go source files.
type Injector struct {
	opts Options
}

// New creates an injector.
func New(opts Options) *Injector {
	if opts.Root == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.Root = wd
		}
	}
	return &Injector{opts: opts}
}

// Inject stamps keys on call sites in the given package patterns
// ("./..." walks recursively) and returns the sites it changed.
func (in *Injector) Inject(patterns ...string) ([]Site, error) {
	return in.walk(patterns, !in.opts.DryRun)
}

// Check returns the call sites that still need a key without writing
// anything. An empty result means the tree is fully keyed.
func (in *Injector) Check(patterns ...string) ([]Site, error) {
	return in.walk(patterns, false)
}

func (in *Injector) walk(patterns []string, write bool) ([]Site, error) {
	dirs, err := findPackages(patterns)
	if err != nil {
		return nil, err
	}
	var all []Site
	for _, dir := range dirs {
		files, err := goFiles(dir)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", dir, err)
		}
		for _, path := range files {
			src, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			out, sites, err := in.File(path, src)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			all = append(all, sites...)
			if write && len(sites) > 0 {
				if err := os.WriteFile(path, out, 0644); err != nil {
					return nil, err
				}
			}
		}
	}
	return all, nil
}

// File rewrites one source file. path is used for key derivation and
// error messages. When no call site needs a key, src is returned unchanged.
func (in *Injector) File(path string, src []byte) ([]byte, []Site, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, nil, err
	}

	rel := in.relPath(path)
	names := bindingNames(file)

	type insertion struct {
		offset int
		text   string
	}
	var inserts []insertion
	var sites []Site

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		callee := calleeName(call.Fun)
		if !slices.Contains(Callees, callee) {
			return true
		}
		// A spread key slice or a full argument list means the call site
		// chose its own key.
		if call.Ellipsis.IsValid() || len(call.Args) != maxArgs-1 {
			return true
		}

		pos := fset.Position(call.Fun.Pos())
		key := deriveKey(rel, pos.Offset)
		if !in.opts.Production {
			if name := names[call]; name != "" && name != "_" {
				key = name + "-" + key
			}
		}
		last := call.Args[len(call.Args)-1]
		inserts = append(inserts, insertion{
			offset: fset.Position(last.End()).Offset,
			text:   ", " + strconv.Quote(key),
		})
		sites = append(sites, Site{File: rel, Line: pos.Line, Callee: callee, Key: key})
		return true
	})

	if len(inserts) == 0 {
		return src, nil, nil
	}

	// Apply back to front so earlier offsets stay valid.
	slices.SortFunc(inserts, func(a, b insertion) int { return b.offset - a.offset })
	out := bytes.Clone(src)
	for _, ins := range inserts {
		out = slices.Insert(out, ins.offset, []byte(ins.text)...)
	}

	formatted, err := format.Source(out)
	if err != nil {
		return nil, nil, fmt.Errorf("format source: %w", err)
	}
	return formatted, sites, nil
}

func (in *Injector) relPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(in.opts.Root, abs)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// deriveKey hashes a call site into a short url-safe key.
func deriveKey(relPath string, offset int) string {
	h := sha256.Sum256([]byte(relPath + "-" + strconv.Itoa(offset)))
	return base64.RawURLEncoding.EncodeToString(h[:])[:keyLen]
}

// calleeName returns the function name of a call target: Name,
// pkg.Name, Name[T] or pkg.Name[T].
func calleeName(fun ast.Expr) string {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name
	case *ast.SelectorExpr:
		return f.Sel.Name
	case *ast.IndexExpr:
		return calleeName(f.X)
	case *ast.IndexListExpr:
		return calleeName(f.X)
	}
	return ""
}

// bindingNames maps calls to the name they are bound to: the variable of
// an assignment or var declaration, or the key of a composite literal
// field.
func bindingNames(file *ast.File) map[*ast.CallExpr]string {
	names := make(map[*ast.CallExpr]string)
	bind := func(lhs []ast.Expr, rhs []ast.Expr) {
		if len(lhs) != len(rhs) {
			return
		}
		for i, r := range rhs {
			call, ok := r.(*ast.CallExpr)
			if !ok {
				continue
			}
			names[call] = exprName(lhs[i])
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.AssignStmt:
			bind(s.Lhs, s.Rhs)
		case *ast.ValueSpec:
			lhs := make([]ast.Expr, len(s.Names))
			for i, id := range s.Names {
				lhs[i] = id
			}
			bind(lhs, s.Values)
		case *ast.KeyValueExpr:
			if call, ok := s.Value.(*ast.CallExpr); ok {
				names[call] = exprName(s.Key)
			}
		}
		return true
	})
	return names
}

func exprName(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.SelectorExpr:
		return x.Sel.Name
	}
	return ""
}

// findPackages resolves package patterns to directory paths.
func findPackages(patterns []string) ([]string, error) {
	var packages []string

	for _, pattern := range patterns {
		if !strings.HasSuffix(pattern, "/...") {
			packages = append(packages, pattern)
			continue
		}
		root := strings.TrimSuffix(pattern, "/...")
		if root == "" {
			root = "."
		}

		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			base := filepath.Base(path)
			if path != root && (strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") || base == "vendor" || base == "testdata") {
				return filepath.SkipDir
			}
			files, err := goFiles(path)
			if err == nil && len(files) > 0 {
				packages = append(packages, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return packages, nil
}

// goFiles lists the non-test Go files of a directory.
func goFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	return files, nil
}
