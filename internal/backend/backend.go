// Package backend resolves a pipeline spec string from the command line into
// a pipeline.Pipeline: an in-process engine, a subprocess or a gRPC service.
package backend

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/hrv-parity/internal/external"
	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
	"github.com/danielpatrickdp/hrv-parity/internal/remote"
)

// #region open
// Open resolves spec to a pipeline. Recognized forms:
//
//	builtin:reference | builtin:candidate
//	exec:<path> [args...]
//	grpc:<host:port>
//
// The returned close func releases connections and is never nil.
func Open(spec string, cfg pipeline.Config) (pipeline.Pipeline, func() error, error) {
	noop := func() error { return nil }
	scheme, rest, ok := strings.Cut(spec, ":")
	if !ok || strings.TrimSpace(rest) == "" {
		return nil, noop, hrverr.InvalidParameter("backend.Open", "pipeline %q: want scheme:target", spec)
	}

	switch scheme {
	case "builtin":
		if err := cfg.Validate(); err != nil {
			return nil, noop, fmt.Errorf("open %s: %w", spec, err)
		}
		switch rest {
		case "reference":
			return pipeline.NewReference(cfg), noop, nil
		case "candidate":
			return pipeline.NewCandidate(cfg), noop, nil
		}
		return nil, noop, hrverr.InvalidParameter("backend.Open", "unknown builtin engine %q", rest)
	case "exec":
		fields := strings.Fields(rest)
		return external.New(fields[0], fields[1:]...), noop, nil
	case "grpc":
		c, err := remote.NewClient(rest)
		if err != nil {
			return nil, noop, fmt.Errorf("open %s: %w", spec, err)
		}
		return c, c.Close, nil
	}
	return nil, noop, hrverr.InvalidParameter("backend.Open", "unknown pipeline scheme %q", scheme)
}
// #endregion open
