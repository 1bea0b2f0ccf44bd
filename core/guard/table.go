package guard

import (
	_ "embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/trezcool/pesantren/core/rbac"
)

//go:embed routes.yaml
var routesYAML []byte

type route struct {
	Path        string `yaml:"path"`
	Title       string `yaml:"title"`
	Requirement `yaml:",inline"`
}

// Table maps page paths to their requirements. A page is guarded by its own route and every route above it.
type Table struct {
	routes map[string]route
}

// Page is a page of the table as listed to clients.
type Page struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Requirement
}

// DefaultTable returns the table of the admin app pages.
func DefaultTable() *Table {
	t, err := ParseTable(routesYAML)
	if err != nil {
		panic(fmt.Sprintf("guard: invalid routes: %v", err))
	}
	return t
}

func ParseTable(data []byte) (*Table, error) {
	var file struct {
		Routes []route `yaml:"routes"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	t := &Table{routes: make(map[string]route, len(file.Routes))}
	for _, r := range file.Routes {
		r.Path = cleanPath(r.Path)
		if _, dup := t.routes[r.Path]; dup {
			return nil, fmt.Errorf("duplicate route %q", r.Path)
		}
		for _, role := range r.Roles {
			if !role.Valid() {
				return nil, fmt.Errorf("route %q: unknown role %q", r.Path, role)
			}
		}
		if r.Module != "" && !contains(rbac.ModuleNames(), r.Module) {
			return nil, fmt.Errorf("route %q: unknown module %q", r.Path, r.Module)
		}
		t.routes[r.Path] = r
	}
	return t, nil
}

// Match returns the requirements guarding p, outer first.
// It reports false when p is not a page of the table.
func (t *Table) Match(p string) ([]Requirement, bool) {
	p = cleanPath(p)
	if _, ok := t.routes[p]; !ok {
		return nil, false
	}

	var reqs []Requirement
	for _, prefix := range ancestors(p) {
		if r, ok := t.routes[prefix]; ok {
			reqs = append(reqs, r.Requirement)
		}
	}
	return reqs, true
}

// Pages returns every page of the table, sorted by path.
func (t *Table) Pages() []Page {
	pages := make([]Page, 0, len(t.routes))
	for _, r := range t.routes {
		pages = append(pages, Page{Path: r.Path, Title: r.Title, Requirement: r.Requirement})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Path < pages[j].Path })
	return pages
}

// ancestors returns "/", "/a", "/a/b" for "/a/b".
func ancestors(p string) []string {
	all := []string{"/"}
	if p == "/" {
		return all
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i := range parts {
		all = append(all, "/"+strings.Join(parts[:i+1], "/"))
	}
	return all
}

func cleanPath(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}

func contains(all []string, s string) bool {
	for _, v := range all {
		if v == s {
			return true
		}
	}
	return false
}
