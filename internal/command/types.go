package command

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind classifies a parameter's runtime type.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindRole
	KindUser
	KindMember
	KindChannel
	KindInt
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindEnum
)

var kindNames = map[Kind]string{
	KindString:  "string",
	KindBool:    "bool",
	KindRole:    "role",
	KindUser:    "user",
	KindMember:  "member",
	KindChannel: "channel",
	KindInt:     "int",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint:    "uint",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindEnum:    "enum",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsInteger reports whether k is any signed or unsigned integer width.
func (k Kind) IsInteger() bool {
	return k >= KindInt && k <= KindUint64
}

// ParseKind maps a declaration type name such as "int64" or "member" to its
// Kind. Matching is case-insensitive.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return KindString, nil
	}
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown parameter type %q", name)
}

// Type describes the runtime type a parameter binds to.
type Type struct {
	Name string
	Kind Kind
	// Members lists enumeration member names in declaration order.
	Members []string
}

// Enum builds an enumeration type.
func Enum(name string, members ...string) Type {
	return Type{Name: name, Kind: KindEnum, Members: members}
}

// TypeOf builds a non-enumeration type named after its kind.
func TypeOf(k Kind) Type {
	return Type{Name: k.String(), Kind: k}
}

// Marker interfaces that let TypeFor recognise platform entity references.
type (
	RoleRef interface{ RoleID() string }
	UserRef interface{ UserID() string }
	// MemberRef is a guild-scoped user.
	MemberRef interface {
		UserRef
		GuildID() string
	}
	ChannelRef interface{ ChannelID() string }
	// Enumeration is implemented by named enumeration types; Members must
	// return the same names in the same order on every call.
	Enumeration interface{ Members() []string }
)

var (
	roleRefType     = reflect.TypeFor[RoleRef]()
	memberRefType   = reflect.TypeFor[MemberRef]()
	userRefType     = reflect.TypeFor[UserRef]()
	channelRefType  = reflect.TypeFor[ChannelRef]()
	enumerationType = reflect.TypeFor[Enumeration]()
)

// TypeFor derives a Type from a Go type. Entity interfaces are checked in
// the order role, user/member, channel so that a type satisfying several
// resolves the same way the compiler maps kinds. Members of an enumeration
// are read from a zero value; for a pointer type the pointer refers to a
// zero element. An interface type has no members to read and maps to a
// string.
func TypeFor(t reflect.Type) Type {
	name := t.String()
	switch {
	case t.Kind() == reflect.Bool:
		return Type{Name: name, Kind: KindBool}
	case t.Implements(roleRefType):
		return Type{Name: name, Kind: KindRole}
	case t.Implements(memberRefType):
		return Type{Name: name, Kind: KindMember}
	case t.Implements(userRefType):
		return Type{Name: name, Kind: KindUser}
	case t.Implements(channelRefType):
		return Type{Name: name, Kind: KindChannel}
	}

	if k, ok := integerKinds[t.Kind()]; ok && !t.Implements(enumerationType) {
		return Type{Name: name, Kind: k}
	}

	if t.Implements(enumerationType) {
		if members, ok := enumMembers(t); ok {
			return Type{Name: name, Kind: KindEnum, Members: members}
		}
	}

	switch t.Kind() {
	case reflect.Float32:
		return Type{Name: name, Kind: KindFloat32}
	case reflect.Float64:
		return Type{Name: name, Kind: KindFloat64}
	}
	return Type{Name: name, Kind: KindString}
}

// enumMembers asks a zero value of t for its members.
func enumMembers(t reflect.Type) ([]string, bool) {
	var v reflect.Value
	switch t.Kind() {
	case reflect.Interface:
		return nil, false
	case reflect.Pointer:
		v = reflect.New(t.Elem())
	default:
		v = reflect.Zero(t)
	}
	e, ok := v.Interface().(Enumeration)
	if !ok {
		return nil, false
	}
	return append([]string(nil), e.Members()...), true
}

var integerKinds = map[reflect.Kind]Kind{
	reflect.Int:    KindInt,
	reflect.Int8:   KindInt8,
	reflect.Int16:  KindInt16,
	reflect.Int32:  KindInt32,
	reflect.Int64:  KindInt64,
	reflect.Uint:   KindUint,
	reflect.Uint8:  KindUint8,
	reflect.Uint16: KindUint16,
	reflect.Uint32: KindUint32,
	reflect.Uint64: KindUint64,
}
