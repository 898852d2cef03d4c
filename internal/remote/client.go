package remote

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// #region client-struct
// Client is a pipeline.Pipeline served by a remote Analyzer.
type Client struct {
	addr   string
	conn   *grpc.ClientConn
	client AnalyzerClient
}

var _ pipeline.Pipeline = (*Client)(nil)
// #endregion client-struct

// #region constructor
// NewClient connects to an Analyzer at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{addr: addr, conn: conn, client: NewAnalyzerClient(conn)}, nil
}

// NewClientWithService creates a Client with an injected service
// implementation, for tests without a connection.
func NewClientWithService(addr string, svc AnalyzerClient) *Client {
	return &Client{addr: addr, client: svc}
}
// #endregion constructor

// #region close
// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region analyze
// Name returns "grpc:<addr>".
func (c *Client) Name() string { return "grpc:" + c.addr }

// AnalyzeSignal sends the waveform to the remote Analyzer.
func (c *Client) AnalyzeSignal(ctx context.Context, w signal.Waveform) (pipeline.Result, error) {
	return c.analyze(ctx, encodeRequest(modeSignal, w.SampleRate, w.Samples))
}

// AnalyzeRR sends RR intervals to the remote Analyzer.
func (c *Client) AnalyzeRR(ctx context.Context, intervalsMs []float64) (pipeline.Result, error) {
	return c.analyze(ctx, encodeRequest(modeRR, 0, intervalsMs))
}

func (c *Client) analyze(ctx context.Context, req *structpb.Struct) (pipeline.Result, error) {
	resp, err := c.client.Analyze(ctx, req)
	if err != nil {
		return pipeline.Result{}, fromStatus(c.Name(), err)
	}
	rec, err := decodeRecord(resp)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("analyze rpc: %w", err)
	}
	return pipeline.Result{Record: rec}, nil
}
// #endregion analyze
