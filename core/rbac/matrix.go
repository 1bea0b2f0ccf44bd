package rbac

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Action is a CRUD action on a resource.
type Action string

const (
	Create Action = "create"
	Read   Action = "read"
	Update Action = "update"
	Delete Action = "delete"
)

var actions = []Action{Create, Read, Update, Delete}

//go:embed matrix.yaml
var matrixYAML []byte

// catalogue is parsed once at init and never mutated afterwards.
var catalogue = mustCompile(matrixYAML)

type (
	roleDef struct {
		Tag           Role   `yaml:"tag"`
		Label         string `yaml:"label"`
		Dashboard     string `yaml:"dashboard"`
		Scope         string `yaml:"scope"`
		AdminSuperset bool   `yaml:"admin_superset"`
	}

	matrixFile struct {
		Roles     []roleDef                    `yaml:"roles"`
		Modules   map[string][]Role            `yaml:"modules"`
		Resources map[string]map[Action][]Role `yaml:"resources"`
	}

	compiled struct {
		order     []Role
		superset  []Role
		roles     map[Role]roleDef
		flags     map[Role]map[string]bool            // {role: {canAccessKeuangan: true}}
		moduleOf  map[string]string                   // {canAccessKeuangan: keuangan}
		resources []string                            // sorted
		grants    map[Action]map[string]map[Role]bool // {action: {resource: {role: true}}}
	}
)

func mustCompile(data []byte) *compiled {
	c, err := compile(data)
	if err != nil {
		panic(fmt.Sprintf("rbac: invalid matrix: %v", err))
	}
	return c
}

func compile(data []byte) (*compiled, error) {
	var mf matrixFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, err
	}

	c := &compiled{
		roles:    make(map[Role]roleDef, len(mf.Roles)),
		flags:    make(map[Role]map[string]bool, len(mf.Roles)),
		moduleOf: make(map[string]string, len(mf.Modules)),
		grants:   make(map[Action]map[string]map[Role]bool, len(actions)),
	}
	for _, def := range mf.Roles {
		if def.Tag == "" || def.Tag == Guest {
			return nil, fmt.Errorf("invalid role tag %q", def.Tag)
		}
		if _, dup := c.roles[def.Tag]; dup {
			return nil, fmt.Errorf("duplicate role %q", def.Tag)
		}
		c.roles[def.Tag] = def
		c.order = append(c.order, def.Tag)
		c.flags[def.Tag] = make(map[string]bool)
		if def.AdminSuperset {
			c.superset = append(c.superset, def.Tag)
		}
	}
	if len(c.superset) == 0 || c.superset[0] != Admin {
		return nil, fmt.Errorf("admin superset must start with %q", Admin)
	}

	for module, roles := range mf.Modules {
		flag := moduleFlag(module)
		c.moduleOf[flag] = module
		for _, r := range roles {
			if _, ok := c.roles[r]; !ok {
				return nil, fmt.Errorf("module %q: unknown role %q", module, r)
			}
			c.flags[r][flag] = true
		}
	}

	for _, a := range actions {
		c.grants[a] = make(map[string]map[Role]bool)
	}
	for resource, table := range mf.Resources {
		c.resources = append(c.resources, resource)
		for a, roles := range table {
			byResource, ok := c.grants[a]
			if !ok {
				return nil, fmt.Errorf("resource %q: unknown action %q", resource, a)
			}
			allowed := make(map[Role]bool, len(roles))
			for _, r := range roles {
				if _, ok := c.roles[r]; !ok {
					return nil, fmt.Errorf("resource %q: unknown role %q", resource, r)
				}
				allowed[r] = true
			}
			byResource[resource] = allowed
		}
	}
	sort.Strings(c.resources)
	return c, nil
}

// moduleFlag turns a module name into its flag name: "keuangan" -> "canAccessKeuangan".
func moduleFlag(module string) string {
	module = strings.TrimSpace(module)
	r, size := utf8.DecodeRuneInString(module)
	if r == utf8.RuneError {
		return "canAccess"
	}
	return "canAccess" + string(unicode.ToUpper(r)) + module[size:]
}
