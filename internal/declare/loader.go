package declare

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/stellarlinkco/cordkit/internal/command"
)

var logger = log.WithPrefix("declare")

var errInvalidDeclaration = errors.New("invalid command declaration")

type file struct {
	Commands []entry `yaml:"commands"`
}

type entry struct {
	Name        string  `yaml:"name"`
	Group       string  `yaml:"group"`
	Description string  `yaml:"description"`
	Params      []param `yaml:"params"`
	Children    []entry `yaml:"children"`
}

type param struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Kind        string    `yaml:"kind"`
	Type        string    `yaml:"type"`
	Optional    bool      `yaml:"optional"`
	Enum        *enumDecl `yaml:"enum"`
}

type enumDecl struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// Load reads path as a single declaration file or, when it is a directory,
// every *.yaml and *.yml file inside it. A missing path yields an empty tree.
func Load(path string) (command.Tree, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return command.Tree{}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("declarations not found", "path", path)
			return command.Tree{}, nil
		}
		return command.Tree{}, fmt.Errorf("stat declarations %q: %w", path, err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadFile parses one declaration file.
func LoadFile(path string) (command.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return command.Tree{}, fmt.Errorf("read declarations %q: %w", path, err)
	}
	nodes, err := parse(bytes.NewReader(data), path)
	if err != nil {
		return command.Tree{}, err
	}
	return command.Tree{Children: nodes}, nil
}

// LoadDir parses every declaration file in dir in name order and
// concatenates their top-level entries.
func LoadDir(dir string) (command.Tree, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return command.Tree{}, nil
		}
		return command.Tree{}, fmt.Errorf("read declarations dir %q: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var tree command.Tree
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		sub, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return command.Tree{}, err
		}
		tree.Children = append(tree.Children, sub.Children...)
	}
	logger.Debug("loaded declarations", "dir", dir, "commands", len(tree.Children))
	return tree, nil
}

// Parse decodes declarations from r. source names r in error messages.
func Parse(r io.Reader, source string) (command.Tree, error) {
	nodes, err := parse(r, source)
	if err != nil {
		return command.Tree{}, err
	}
	return command.Tree{Children: nodes}, nil
}

func parse(r io.Reader, source string) ([]command.Node, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", errInvalidDeclaration, source, err)
	}

	nodes := make([]command.Node, 0, len(f.Commands))
	for i, e := range f.Commands {
		node, err := e.toNode(fmt.Sprintf("commands[%d]", i))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errInvalidDeclaration, source, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (e entry) toNode(at string) (command.Node, error) {
	switch {
	case e.Name != "" && e.Group != "":
		return nil, fmt.Errorf("%s: set either name or group, not both", at)
	case e.Group != "":
		if len(e.Params) > 0 {
			return nil, fmt.Errorf("%s: group %q cannot declare params", at, e.Group)
		}
		g := &command.Group{
			Key:         e.Group,
			Description: e.Description,
			Children:    make([]command.Node, 0, len(e.Children)),
		}
		for i, child := range e.Children {
			node, err := child.toNode(fmt.Sprintf("%s.children[%d]", at, i))
			if err != nil {
				return nil, err
			}
			g.Children = append(g.Children, node)
		}
		return g, nil
	case e.Name != "":
		if len(e.Children) > 0 {
			return nil, fmt.Errorf("%s: command %q cannot declare children", at, e.Name)
		}
		c := &command.Command{
			Key:         e.Name,
			Description: e.Description,
			Parameters:  make([]command.Parameter, 0, len(e.Params)),
		}
		for i, p := range e.Params {
			param, err := p.toParameter()
			if err != nil {
				return nil, fmt.Errorf("%s.params[%d]: %w", at, i, err)
			}
			c.Parameters = append(c.Parameters, param)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%s: either name or group is required", at)
	}
}

func (p param) toParameter() (command.Parameter, error) {
	kind, err := command.ParseKind(p.Type)
	if err != nil {
		return nil, err
	}

	typ := command.TypeOf(kind)
	if kind == command.KindEnum {
		if p.Enum == nil || len(p.Enum.Members) == 0 {
			return nil, fmt.Errorf("enum parameter %q needs enum.members", p.Name)
		}
		name := p.Enum.Name
		if name == "" {
			name = p.Name
		}
		typ = command.Enum(name, p.Enum.Members...)
	} else if p.Enum != nil {
		return nil, fmt.Errorf("parameter %q declares enum but has type %s", p.Name, kind)
	}

	base := command.Param{
		Name:        p.Name,
		Description: p.Description,
		Type:        typ,
		Optional:    p.Optional,
	}
	switch strings.ToLower(strings.TrimSpace(p.Kind)) {
	case "", "positional":
		return command.Positional{Param: base}, nil
	case "named":
		return command.Named{Param: base}, nil
	case "switch":
		return command.Switch{Param: base}, nil
	case "named-collection":
		return command.NamedCollection{Param: base}, nil
	case "positional-collection":
		return command.PositionalCollection{Param: base}, nil
	default:
		return nil, fmt.Errorf("unknown parameter kind %q", p.Kind)
	}
}
