package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/ratekeeper/internal/types"
)

/*
 * gRPC binding of the quote API.
 *
 * Messages are google.protobuf.Struct carrying the same JSON shapes as the
 * HTTP binding, so the service descriptor is written by hand instead of
 * generated. Amounts travel as decimal strings inside the Struct and are
 * never rounded through float64.
 */

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "ratekeeper.quote.v1.QuoteAPI"

// QuoteAPIServer is the server API of the quote service.
type QuoteAPIServer interface {
	QuoteInsurance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QuoteRegistration(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QuoteOnRoad(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetQuote(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// GRPCService adapts QuoteService to QuoteAPIServer.
type GRPCService struct {
	svc *QuoteService
}

// NewGRPCService wraps svc for registration on a grpc.Server.
func NewGRPCService(svc *QuoteService) *GRPCService {
	return &GRPCService{svc: svc}
}

// Register registers the quote API on s.
func (g *GRPCService) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&ServiceDesc, g)
}

// QuoteInsurance prices an insurance quote.
func (g *GRPCService) QuoteInsurance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req InsuranceRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcError(err)
	}
	quote, err := g.svc.QuoteInsurance(ctx, &req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(quote)
}

// QuoteRegistration prices a registration quote.
func (g *GRPCService) QuoteRegistration(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RegistrationRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcError(err)
	}
	quote, err := g.svc.QuoteRegistration(ctx, &req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(quote)
}

// QuoteOnRoad prices an on-road quote.
func (g *GRPCService) QuoteOnRoad(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req OnRoadRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcError(err)
	}
	quote, err := g.svc.QuoteOnRoad(ctx, &req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(quote)
}

// GetQuote returns a persisted quote. Request: {"quote_id": "..."}.
func (g *GRPCService) GetQuote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["quote_id"].GetStringValue()
	quote, err := g.svc.GetQuote(ctx, types.QuoteID(id))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(quote)
}

func fromStruct(in *structpb.Struct, dst any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, grpcError(fmt.Errorf("encode response: %w", err))
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, grpcError(fmt.Errorf("encode response: %w", err))
	}
	return out, nil
}

func unaryMethod(name string, call func(QuoteAPIServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(QuoteAPIServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(QuoteAPIServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the quote API for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QuoteAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("QuoteInsurance", QuoteAPIServer.QuoteInsurance),
		unaryMethod("QuoteRegistration", QuoteAPIServer.QuoteRegistration),
		unaryMethod("QuoteOnRoad", QuoteAPIServer.QuoteOnRoad),
		unaryMethod("GetQuote", QuoteAPIServer.GetQuote),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ratekeeper/quote/v1/quote.proto",
}

// QuoteAPIClient calls the quote API over a client connection.
type QuoteAPIClient struct {
	cc grpc.ClientConnInterface
}

// NewQuoteAPIClient creates a client on cc.
func NewQuoteAPIClient(cc grpc.ClientConnInterface) *QuoteAPIClient {
	return &QuoteAPIClient{cc: cc}
}

// Call invokes method (e.g. "QuoteInsurance") with a JSON-shaped request.
func (c *QuoteAPIClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
