package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(os.Stdout)

	SetLevel(Warning)
	defer SetLevel(Notice)

	logger := New("test")
	logger.Info("hidden")
	logger.Warning("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info message to be filtered; got %q", out)
	}
	if !strings.Contains(out, "[test]") || !strings.Contains(out, "visible") {
		t.Fatalf("expected warning message with module name; got %q", out)
	}
}

func TestModuleLevels(t *testing.T) {
	SetLevel(Warning)
	defer SetLevel(Notice)
	SetModuleLevel("chatty", Debug)
	SetModuleLevel("quiet", Error)
	defer ResetModuleLevels()

	// Overrides survive a sink change.
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(os.Stdout)

	type spec struct {
		module  string
		log     func(Logger, ...interface{})
		visible bool
	}
	specs := []spec{
		{"chatty", Logger.Debug, true},
		{"quiet", Logger.Warning, false},
		{"quiet", Logger.Error, true},
		{"other", Logger.Notice, false},
		{"other", Logger.Warning, true},
	}

	for specIndex, s := range specs {
		buf.Reset()
		s.log(New(s.module), "message")
		if got := strings.Contains(buf.String(), "message"); got != s.visible {
			t.Fatalf("[spec %d] expected message from %q to be visible=%t; got %q", specIndex, s.module, s.visible, buf.String())
		}
	}

	ResetModuleLevels()
	buf.Reset()
	New("chatty").Info("message")
	if buf.Len() != 0 {
		t.Fatalf("expected reset module to fall back to the default level; got %q", buf.String())
	}
}

func TestParseModuleLevels(t *testing.T) {
	type spec struct {
		in     string
		exp    map[string]Level
		expErr bool
	}
	specs := []spec{
		{"", map[string]Level{}, false},
		{"voxelizer=debug, path tracer = WARNING", map[string]Level{"voxelizer": Debug, "path tracer": Warning}, false},
		{"renderer=notice,", map[string]Level{"renderer": Notice}, false},
		{"renderer", nil, true},
		{"=info", nil, true},
		{"renderer=loud", nil, true},
		{"renderer=critical", nil, true},
	}

	for specIndex, s := range specs {
		got, err := ParseModuleLevels(s.in)
		if s.expErr {
			if err == nil {
				t.Fatalf("[spec %d] expected an error", specIndex)
			}
			continue
		}
		if err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
		if len(got) != len(s.exp) {
			t.Fatalf("[spec %d] expected %v; got %v", specIndex, s.exp, got)
		}
		for module, level := range s.exp {
			if got[module] != level {
				t.Fatalf("[spec %d] expected %q at level %s; got %s", specIndex, module, level, got[module])
			}
		}
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	type spec struct {
		v, vv bool
		exp   Level
	}
	specs := []spec{
		{false, false, Notice},
		{true, false, Info},
		{false, true, Debug},
		{true, true, Debug},
	}
	for idx, s := range specs {
		if got := LevelFromVerbosity(s.v, s.vv); got != s.exp {
			t.Fatalf("[spec %d] expected level %s; got %s", idx, s.exp, got)
		}
	}
}
