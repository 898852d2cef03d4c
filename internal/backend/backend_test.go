package backend

import (
	"errors"
	"testing"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
)

func TestOpen_Schemes(t *testing.T) {
	cases := []struct {
		spec string
		name string
	}{
		{"builtin:reference", "reference"},
		{"builtin:candidate", "candidate"},
		{"exec:/usr/local/bin/analyze --quiet", "exec:/usr/local/bin/analyze"},
		{"grpc:localhost:50061", "grpc:localhost:50061"},
	}
	for _, tc := range cases {
		p, closeFn, err := Open(tc.spec, pipeline.Default())
		if err != nil {
			t.Fatalf("Open(%q): %v", tc.spec, err)
		}
		if p.Name() != tc.name {
			t.Errorf("Open(%q): expected name %q, got %q", tc.spec, tc.name, p.Name())
		}
		if err := closeFn(); err != nil {
			t.Errorf("close %q: %v", tc.spec, err)
		}
	}
}

func TestOpen_Rejects(t *testing.T) {
	for _, spec := range []string{"", "reference", "builtin:", "builtin:other", "ftp:host"} {
		_, closeFn, err := Open(spec, pipeline.Default())
		if !errors.Is(err, hrverr.ErrInvalidParameter) {
			t.Errorf("Open(%q): expected invalid parameter, got %v", spec, err)
		}
		if closeFn == nil {
			t.Errorf("Open(%q): close func is nil", spec)
		}
	}
}

func TestOpen_BuiltinValidatesConfig(t *testing.T) {
	cfg := pipeline.Default()
	cfg.LowHz = 10
	if _, _, err := Open("builtin:reference", cfg); !errors.Is(err, hrverr.ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}
