package command

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Compiler turns a Tree into platform options. It holds no mutable state;
// one Compiler may be shared by concurrent callers.
type Compiler struct {
	limits Limits
}

// New returns a Compiler enforcing limits. Zero fields take platform defaults.
func New(limits Limits) *Compiler {
	return &Compiler{limits: limits.WithDefaults()}
}

// Limits returns the limits c enforces.
func (c *Compiler) Limits() Limits {
	return c.limits
}

// Compile compiles tree with the platform's default limits.
func Compile(tree Tree) ([]Option, error) {
	return New(DefaultLimits()).Compile(tree)
}

// Compile converts every top-level node in order and then validates the
// top-level set. The first violation found is returned; nothing is
// aggregated. Compile panics if the tree holds a Node it does not know.
func (c *Compiler) Compile(tree Tree) ([]Option, error) {
	options := make([]Option, 0, len(tree.Children))
	for _, child := range tree.Children {
		opt, err := c.convert(child, 0, nil)
		if err != nil {
			return nil, err
		}
		options = append(options, opt)
	}

	if len(options) > c.limits.MaxTopLevel {
		return nil, &UnsupportedFeatureError{
			Reason: ReasonTooManyTopLevel,
			Detail: fmt.Sprintf("%d top-level commands, limit is %d", len(options), c.limits.MaxTopLevel),
		}
	}
	if name, ok := firstDuplicate(options); ok {
		return nil, &UnsupportedFeatureError{
			Path:   name,
			Reason: ReasonDuplicateName,
			Detail: "top-level commands cannot be overloaded",
		}
	}
	for _, opt := range options {
		if n := opt.StringifiedLength(); n > c.limits.MaxTotalLength {
			return nil, &UnsupportedFeatureError{
				Path:   opt.Name,
				Reason: ReasonTooLong,
				Detail: fmt.Sprintf("%d characters, limit is %d", n, c.limits.MaxTotalLength),
			}
		}
	}
	return options, nil
}

func (c *Compiler) convert(node Node, depth int, parent []string) (Option, error) {
	switch n := node.(type) {
	case *Command:
		path := childPath(parent, n.Key)
		if err := checkName(path, n.Key); err != nil {
			return Option{}, err
		}
		params, err := c.compileParameters(n, path)
		if err != nil {
			return Option{}, err
		}
		return Option{
			Type:        OptionSubCommand,
			Name:        n.Key,
			Description: n.Description,
			Options:     params,
		}, nil

	case *Group:
		path := childPath(parent, n.Key)
		if depth >= c.limits.MaxGroupDepth {
			return Option{}, &UnsupportedFeatureError{
				Path:   strings.Join(path, " "),
				Reason: ReasonTooDeep,
				Detail: fmt.Sprintf("group at depth %d, groups may nest at most %d deep", depth+1, c.limits.MaxGroupDepth),
			}
		}
		if err := checkName(path, n.Key); err != nil {
			return Option{}, err
		}

		children := make([]Option, 0, len(n.Children))
		for _, child := range n.Children {
			opt, err := c.convert(child, depth+1, path)
			if err != nil {
				return Option{}, err
			}
			children = append(children, opt)
		}

		subcommands := 0
		for _, child := range children {
			if child.Type == OptionSubCommand {
				subcommands++
			}
		}
		if subcommands > c.limits.MaxSubcommands {
			return Option{}, &UnsupportedFeatureError{
				Path:   strings.Join(path, " "),
				Reason: ReasonTooManySubcommands,
				Detail: fmt.Sprintf("%d subcommands, limit is %d", subcommands, c.limits.MaxSubcommands),
			}
		}
		if name, ok := firstDuplicate(children); ok {
			return Option{}, &UnsupportedFeatureError{
				Path:   strings.Join(childPath(path, name), " "),
				Reason: ReasonDuplicateName,
				Detail: "commands cannot be overloaded",
			}
		}

		return Option{
			Type:        OptionSubCommandGroup,
			Name:        n.Key,
			Description: n.Description,
			Options:     children,
		}, nil

	default:
		panic(fmt.Sprintf("command: unexpected node type %T", node))
	}
}

func (c *Compiler) compileParameters(cmd *Command, path []string) ([]Option, error) {
	where := strings.Join(path, " ")

	for _, p := range cmd.Parameters {
		switch p := p.(type) {
		case Switch:
			return nil, &UnsupportedParameterFeatureError{
				Path:      where,
				Parameter: p.Name,
				Reason:    ReasonSwitch,
				Detail:    "switches have no slash-command equivalent",
			}
		case NamedCollection, PositionalCollection:
			return nil, &UnsupportedParameterFeatureError{
				Path:      where,
				Parameter: p.Base().Name,
				Reason:    ReasonCollection,
				Detail:    "collections have no slash-command equivalent",
			}
		}
	}

	options := make([]Option, 0, len(cmd.Parameters))
	seen := make(map[string]struct{}, len(cmd.Parameters))
	for _, p := range cmd.Parameters {
		param := p.Base()
		if !NamePattern.MatchString(param.Name) {
			return nil, &UnsupportedFeatureError{
				Path:      where,
				Parameter: param.Name,
				Reason:    ReasonInvalidName,
				Detail:    fmt.Sprintf("name must match %s", NamePattern),
			}
		}
		if _, dup := seen[param.Name]; dup {
			return nil, &UnsupportedFeatureError{
				Path:      where,
				Parameter: param.Name,
				Reason:    ReasonDuplicateName,
				Detail:    "parameter names must be unique within a command",
			}
		}
		seen[param.Name] = struct{}{}

		opt := Option{
			Type:        optionTypeFor(param.Type.Kind),
			Name:        param.Name,
			Description: param.Description,
			Required:    !param.Optional,
		}
		if param.Type.Kind == KindEnum {
			choices, err := c.choices(where, param)
			if err != nil {
				return nil, err
			}
			opt.Choices = choices
		}
		options = append(options, opt)
	}

	if len(options) > c.limits.MaxParameters {
		return nil, &UnsupportedFeatureError{
			Path:   where,
			Reason: ReasonTooManyParameters,
			Detail: fmt.Sprintf("%d parameters, limit is %d", len(options), c.limits.MaxParameters),
		}
	}
	return options, nil
}

func (c *Compiler) choices(where string, param Param) ([]Choice, error) {
	choices := make([]Choice, 0, len(param.Type.Members))
	for _, member := range param.Type.Members {
		choice := Choice{Name: member, Value: member}
		if n := utf8.RuneCountInString(choice.Value); n > c.limits.MaxChoiceLength {
			return nil, &UnsupportedParameterFeatureError{
				Path:      where,
				Parameter: param.Name,
				Reason:    ReasonChoiceTooLong,
				Detail:    fmt.Sprintf("value of member %q is %d characters, limit is %d", member, n, c.limits.MaxChoiceLength),
			}
		}
		if n := utf8.RuneCountInString(choice.Name); n > c.limits.MaxChoiceLength {
			return nil, &UnsupportedParameterFeatureError{
				Path:      where,
				Parameter: param.Name,
				Reason:    ReasonChoiceTooLong,
				Detail:    fmt.Sprintf("name of member %q is %d characters, limit is %d", member, n, c.limits.MaxChoiceLength),
			}
		}
		choices = append(choices, choice)
	}
	if len(choices) > c.limits.MaxChoices {
		return nil, &UnsupportedParameterFeatureError{
			Path:      where,
			Parameter: param.Name,
			Reason:    ReasonTooManyChoices,
			Detail:    fmt.Sprintf("enumeration %s has %d members, limit is %d", param.Type.Name, len(choices), c.limits.MaxChoices),
		}
	}
	return choices, nil
}

// optionTypeFor maps a runtime kind to its wire type. Order matters for
// kinds that TypeFor could have resolved more than one way.
func optionTypeFor(k Kind) OptionType {
	switch {
	case k == KindBool:
		return OptionBoolean
	case k == KindRole:
		return OptionRole
	case k == KindUser, k == KindMember:
		return OptionUser
	case k == KindChannel:
		return OptionChannel
	case k.IsInteger():
		return OptionInteger
	default:
		// Enumerations are strings with choices; everything else is a string.
		return OptionString
	}
}

func checkName(path []string, key string) error {
	if NamePattern.MatchString(key) {
		return nil
	}
	return &UnsupportedFeatureError{
		Path:   strings.Join(path, " "),
		Reason: ReasonInvalidName,
		Detail: fmt.Sprintf("name must match %s", NamePattern),
	}
}

func childPath(parent []string, key string) []string {
	path := make([]string, len(parent), len(parent)+1)
	copy(path, parent)
	return append(path, key)
}

func firstDuplicate(options []Option) (string, bool) {
	seen := make(map[string]struct{}, len(options))
	for _, opt := range options {
		if _, ok := seen[opt.Name]; ok {
			return opt.Name, true
		}
		seen[opt.Name] = struct{}{}
	}
	return "", false
}
