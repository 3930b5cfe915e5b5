// Package command models slash-command declarations as a tree and compiles
// that tree into the option schema the platform accepts for bulk command
// registration.
package command

// Tree is the virtual root of a command declaration. Its children become the
// top-level application commands.
type Tree struct {
	Children []Node
}

// Node is either a *Command or a *Group. The set is closed: only types in
// this package implement it.
type Node interface {
	NodeKey() string
	isNode()
}

// Command is an invocable leaf.
type Command struct {
	Key         string
	Description string
	Parameters  []Parameter
}

// Group holds nested commands or groups.
type Group struct {
	Key         string
	Description string
	Children    []Node
}

func (c *Command) NodeKey() string { return c.Key }
func (g *Group) NodeKey() string   { return g.Key }

func (*Command) isNode() {}
func (*Group) isNode()   {}

// Param is the data every parameter shape carries.
type Param struct {
	// Name is the hint name shown to users; it becomes the option name.
	Name        string
	Description string
	Type        Type
	// Optional marks the parameter as omissible by the invoker.
	Optional bool
}

// Parameter is one of Named, Positional, Switch, NamedCollection or
// PositionalCollection.
type Parameter interface {
	Base() Param
	isParameter()
}

type (
	// Named is a single value bound by name.
	Named struct{ Param }
	// Positional is a single value bound by position.
	Positional struct{ Param }
	// Switch is a presence-only flag.
	Switch struct{ Param }
	// NamedCollection accepts repeated named values.
	NamedCollection struct{ Param }
	// PositionalCollection consumes the remaining positional values.
	PositionalCollection struct{ Param }
)

func (p Named) Base() Param                { return p.Param }
func (p Positional) Base() Param           { return p.Param }
func (p Switch) Base() Param               { return p.Param }
func (p NamedCollection) Base() Param      { return p.Param }
func (p PositionalCollection) Base() Param { return p.Param }

func (Named) isParameter()                {}
func (Positional) isParameter()           {}
func (Switch) isParameter()               {}
func (NamedCollection) isParameter()      {}
func (PositionalCollection) isParameter() {}
