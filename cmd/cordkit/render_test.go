package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stellarlinkco/cordkit/internal/command"
)

func TestRenderCompileError_Parameter(t *testing.T) {
	err := fmt.Errorf("compile commands: %w", &command.UnsupportedParameterFeatureError{
		Path:      "admin ban",
		Parameter: "verbose",
		Reason:    command.ReasonSwitch,
		Detail:    "switches have no slash-command equivalent",
	})

	output := RenderCompileError(err)

	for _, want := range []string{"Unsupported parameter", "admin ban", "verbose", "switch parameter", "bool parameter"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRenderCompileError_Tree(t *testing.T) {
	output := RenderCompileError(&command.UnsupportedFeatureError{
		Reason: command.ReasonTooManyTopLevel,
		Detail: "101 commands, limit 100",
	})

	if !strings.Contains(output, "Command tree rejected") {
		t.Errorf("missing header:\n%s", output)
	}
	if !strings.Contains(output, "(root)") {
		t.Errorf("tree-wide error should name the root:\n%s", output)
	}
	if strings.Contains(output, "Parameter:") {
		t.Errorf("unexpected parameter line:\n%s", output)
	}
	if !strings.Contains(output, "commands.limits") {
		t.Errorf("missing limits hint:\n%s", output)
	}
}

func TestRenderCompileError_Plain(t *testing.T) {
	output := RenderCompileError(errors.New("load declarations: boom"))
	if !strings.Contains(output, "boom") || strings.Contains(output, "Reason:") {
		t.Errorf("output = %q", output)
	}
}

func TestReportCompileError_SkipsOtherErrors(t *testing.T) {
	var sb strings.Builder
	reportCompileError(&sb, errors.New("network down"))
	if sb.Len() != 0 {
		t.Errorf("wrote %q for a non-compile error", sb.String())
	}
}
