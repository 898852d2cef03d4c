package remote

import (
	"context"
	"log"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// Server exposes a pipeline as an Analyzer.
type Server struct {
	pipeline pipeline.Pipeline
}

var _ AnalyzerServer = (*Server)(nil)

// NewServer wraps p.
func NewServer(p pipeline.Pipeline) *Server {
	return &Server{pipeline: p}
}

// Analyze decodes the request, runs the pipeline and encodes the record.
func (s *Server) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	mode, fs, values, err := decodeRequest(req)
	if err != nil {
		return nil, toStatus(err)
	}

	var res pipeline.Result
	if mode == modeRR {
		res, err = s.pipeline.AnalyzeRR(ctx, values)
	} else {
		res, err = s.pipeline.AnalyzeSignal(ctx, signal.Waveform{Samples: values, SampleRate: fs})
	}
	if err != nil {
		log.Printf("[REMOTE] analyze %s (%d values) failed after %s: %v", mode, len(values), time.Since(start), err)
		return nil, toStatus(err)
	}

	out, err := encodeRecord(res.Record)
	if err != nil {
		return nil, toStatus(err)
	}
	log.Printf("[REMOTE] analyze %s (%d values) ok in %s", mode, len(values), time.Since(start))
	return out, nil
}
