package command

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type testRole struct{}

func (testRole) RoleID() string { return "r" }

type testUser struct{}

func (testUser) UserID() string { return "u" }

type testMember struct{ testUser }

func (testMember) GuildID() string { return "g" }

type testChannel struct{}

func (testChannel) ChannelID() string { return "c" }

// testRoleUser satisfies both role and user; role wins.
type testRoleUser struct {
	testRole
	testUser
}

type testColor int

func (testColor) Members() []string { return []string{"red", "green"} }

type testCount uint16

// testShades reads a field through a pointer receiver.
type testShades struct{ extra []string }

func (s *testShades) Members() []string { return append([]string{"light", "dark"}, s.extra...) }

func TestTypeFor(t *testing.T) {
	tests := []struct {
		typ  reflect.Type
		want Kind
	}{
		{reflect.TypeFor[bool](), KindBool},
		{reflect.TypeFor[testRole](), KindRole},
		{reflect.TypeFor[testUser](), KindUser},
		{reflect.TypeFor[testMember](), KindMember},
		{reflect.TypeFor[testChannel](), KindChannel},
		{reflect.TypeFor[testRoleUser](), KindRole},
		{reflect.TypeFor[int32](), KindInt32},
		{reflect.TypeFor[testCount](), KindUint16},
		{reflect.TypeFor[testColor](), KindEnum},
		{reflect.TypeFor[float64](), KindFloat64},
		{reflect.TypeFor[string](), KindString},
		{reflect.TypeFor[[]byte](), KindString},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			got := TypeFor(tt.typ)
			if got.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.want)
			}
			if got.Name != tt.typ.String() {
				t.Errorf("Name = %q, want %q", got.Name, tt.typ.String())
			}
		})
	}
}

func TestTypeFor_EnumMembers(t *testing.T) {
	got := TypeFor(reflect.TypeFor[testColor]())
	if diff := cmp.Diff([]string{"red", "green"}, got.Members); diff != "" {
		t.Errorf("Members mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeFor_PointerAndInterfaceEnumerations(t *testing.T) {
	tests := []struct {
		typ         reflect.Type
		wantKind    Kind
		wantMembers []string
	}{
		{reflect.TypeFor[*testShades](), KindEnum, []string{"light", "dark"}},
		{reflect.TypeFor[*testColor](), KindEnum, []string{"red", "green"}},
		{reflect.TypeFor[Enumeration](), KindString, nil},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			got := TypeFor(tt.typ)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if diff := cmp.Diff(tt.wantMembers, got.Members); diff != "" {
				t.Errorf("Members mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"":        KindString,
		"string":  KindString,
		"BOOL":    KindBool,
		"member":  KindMember,
		"uint64":  KindUint64,
		" enum ":  KindEnum,
		"float32": KindFloat32,
	}
	for in, want := range tests {
		got, err := ParseKind(in)
		if err != nil {
			t.Errorf("ParseKind(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseKind(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseKind("decimal"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestOptionTypeFor(t *testing.T) {
	tests := map[Kind]OptionType{
		KindBool:    OptionBoolean,
		KindRole:    OptionRole,
		KindUser:    OptionUser,
		KindMember:  OptionUser,
		KindChannel: OptionChannel,
		KindInt8:    OptionInteger,
		KindUint64:  OptionInteger,
		KindEnum:    OptionString,
		KindFloat32: OptionString,
		KindString:  OptionString,
	}
	for k, want := range tests {
		if got := optionTypeFor(k); got != want {
			t.Errorf("optionTypeFor(%v) = %v, want %v", k, got, want)
		}
	}
}
