package command

import "testing"

func TestOption_StringifiedLength(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want int
	}{
		{"empty", Option{}, 0},
		{"ascii", Option{Name: "ping", Description: "pong"}, 8},
		{"accented", Option{Name: "café", Description: "é"}, 5},
		{"astral", Option{Name: "x", Description: "😀😀"}, 3},
		{"combining mark", Option{Name: "e\u0301"}, 2},
		{
			"choices and children",
			Option{
				Name:    "名前",
				Choices: []Choice{{Name: "赤", Value: "red"}},
				Options: []Option{{Name: "sub", Description: "ñ"}},
			},
			2 + 1 + 3 + 3 + 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opt.StringifiedLength(); got != tt.want {
				t.Errorf("StringifiedLength() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOptionType_String(t *testing.T) {
	if got := OptionSubCommandGroup.String(); got != "SubCommandGroup" {
		t.Errorf("String() = %q", got)
	}
	if got := OptionType(99).String(); got != "OptionType(99)" {
		t.Errorf("String() = %q", got)
	}
}
