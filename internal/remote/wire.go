// Package remote serves and consumes an analysis pipeline over gRPC.
//
// The service has a single unary method, /hrv.v1.Analyzer/Analyze. Requests
// and responses are google.protobuf.Struct messages so that non-Go
// implementations need no generated code:
//
//	request:  {"mode": "signal"|"rr", "sample_rate": <hz>, "values": [...]}
//	response: the metrics record, metric name to number or null
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
)

// #region service-desc
const (
	serviceName   = "hrv.v1.Analyzer"
	analyzeMethod = "/" + serviceName + "/Analyze"

	modeSignal = "signal"
	modeRR     = "rr"
)

// AnalyzerServer is the server side of the Analyzer service.
type AnalyzerServer interface {
	Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// AnalyzerClient is the client side of the Analyzer service.
type AnalyzerClient interface {
	Analyze(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AnalyzerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hrv/v1/analyzer.proto",
}

// Register adds srv to a gRPC server.
func Register(gs grpc.ServiceRegistrar, srv AnalyzerServer) {
	gs.RegisterService(&serviceDesc, srv)
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type analyzerClient struct {
	cc grpc.ClientConnInterface
}

// NewAnalyzerClient wraps a connection.
func NewAnalyzerClient(cc grpc.ClientConnInterface) AnalyzerClient {
	return &analyzerClient{cc: cc}
}

func (c *analyzerClient) Analyze(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
// #endregion service-desc

// #region messages
func encodeRequest(mode string, sampleRate float64, values []float64) *structpb.Struct {
	list := make([]*structpb.Value, len(values))
	for i, v := range values {
		list[i] = structpb.NewNumberValue(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"mode":        structpb.NewStringValue(mode),
		"sample_rate": structpb.NewNumberValue(sampleRate),
		"values":      structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}
}

func decodeRequest(req *structpb.Struct) (mode string, sampleRate float64, values []float64, err error) {
	f := req.GetFields()
	mode = f["mode"].GetStringValue()
	if mode != modeSignal && mode != modeRR {
		return "", 0, nil, hrverr.InvalidParameter("remote.Analyze", "unknown mode %q", mode)
	}
	list := f["values"].GetListValue()
	if list == nil {
		return "", 0, nil, hrverr.InvalidParameter("remote.Analyze", "missing values")
	}
	values = make([]float64, len(list.GetValues()))
	for i, v := range list.GetValues() {
		if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
			return "", 0, nil, hrverr.InvalidParameter("remote.Analyze", "value %d is not a number", i)
		}
		values[i] = v.GetNumberValue()
	}
	return mode, f["sample_rate"].GetNumberValue(), values, nil
}

func encodeRecord(rec hrv.Record) (*structpb.Struct, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return s, nil
}

func decodeRecord(s *structpb.Struct) (hrv.Record, error) {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return hrv.Record{}, fmt.Errorf("marshal response: %w", err)
	}
	var rec hrv.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return hrv.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
// #endregion messages

// #region status-mapping
// toStatus maps an analysis error to a gRPC status.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	switch hrverr.KindOf(err) {
	case hrverr.ErrInvalidParameter:
		return status.Error(codes.InvalidArgument, err.Error())
	case hrverr.ErrInsufficientData:
		return status.Error(codes.FailedPrecondition, err.Error())
	case hrverr.ErrNumericDegenerate:
		return status.Error(codes.OutOfRange, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus maps a gRPC error back to the error taxonomy. Transport
// failures become ErrExternalProcess.
func fromStatus(op string, err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.InvalidArgument:
		return hrverr.InvalidParameter(op, "%s", st.Message())
	case codes.FailedPrecondition:
		return hrverr.InsufficientData(op, "%s", st.Message())
	case codes.OutOfRange:
		return hrverr.NumericDegenerate(op, "%s", st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", hrverr.ExternalProcess(op, "%s", st.Message()), context.DeadlineExceeded)
	}
	return hrverr.ExternalProcess(op, "%s: %s", st.Code(), st.Message())
}
// #endregion status-mapping
