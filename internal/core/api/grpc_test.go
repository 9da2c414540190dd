package api

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// dialBufconn serves svc on an in-memory listener and returns a client.
func dialBufconn(t *testing.T, svc *QuoteService) *QuoteAPIClient {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	NewGRPCService(svc).Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewQuoteAPIClient(conn)
}

func mustStruct(t *testing.T, v any) *structpb.Struct {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	out := &structpb.Struct{}
	require.NoError(t, protojson.Unmarshal(data, out))
	return out
}

func TestGRPC_QuoteInsurance(t *testing.T) {
	env := newTestEnv(t)
	env.storeActive(t, insuranceRule("Acme"))
	client := dialBufconn(t, env.svc)

	in := mustStruct(t, map[string]any{
		"scope":   map[string]any{"state_code": "MH", "vehicle_type": "TWO_WHEELER", "insurer_name": "Acme"},
		"context": map[string]any{"ex_showroom_price": 100000, "engine_cc": 110, "fuel_type": "PETROL", "tenures": map[string]int{"OD": 1, "TP": 5}},
		"persist": true,
	})
	out, err := client.Call(context.Background(), "QuoteInsurance", in)
	require.NoError(t, err)

	result := out.GetFields()["result"].GetStructValue().GetFields()
	assert.Equal(t, "6561", result["total_premium"].GetStringValue())
	assert.Equal(t, "6561", out.GetFields()["payable"].GetStringValue())

	id := out.GetFields()["quote_id"].GetStringValue()
	require.NotEmpty(t, id)

	stored, err := client.Call(context.Background(), "GetQuote", mustStruct(t, map[string]string{"quote_id": id}))
	require.NoError(t, err)
	assert.Equal(t, "INSURANCE", stored.GetFields()["kind"].GetStringValue())
}

func TestGRPC_QuoteRegistration(t *testing.T) {
	env := newTestEnv(t)
	env.storeActive(t, roadTaxRule("MH", "10"))
	client := dialBufconn(t, env.svc)

	out, err := client.Call(context.Background(), "QuoteRegistration", mustStruct(t, map[string]any{
		"scope":   map[string]any{"state_code": "MH", "vehicle_type": "TWO_WHEELER"},
		"context": map[string]any{"ex_showroom_price": 100000, "engine_cc": 110, "fuel_type": "PETROL", "registration_type": "COMPANY"},
	}))
	require.NoError(t, err)
	result := out.GetFields()["result"].GetStructValue().GetFields()
	assert.Equal(t, "20300", result["total_amount"].GetStringValue())
}

func TestGRPC_ErrorCodes(t *testing.T) {
	env := newTestEnv(t)
	env.storeActive(t, insuranceRule("Acme"))
	client := dialBufconn(t, env.svc)
	validCtx := map[string]any{"ex_showroom_price": 100000, "engine_cc": 110, "fuel_type": "PETROL"}

	tests := []struct {
		name   string
		method string
		in     map[string]any
		want   codes.Code
	}{
		{
			name:   "no selector",
			method: "QuoteInsurance",
			in:     map[string]any{"context": validCtx},
			want:   codes.InvalidArgument,
		},
		{
			name:   "invalid context",
			method: "QuoteInsurance",
			in: map[string]any{
				"scope":   map[string]any{"state_code": "MH", "vehicle_type": "TWO_WHEELER", "insurer_name": "Acme"},
				"context": map[string]any{"ex_showroom_price": 0, "engine_cc": 110, "fuel_type": "PETROL"},
			},
			want: codes.InvalidArgument,
		},
		{
			name:   "unknown scope",
			method: "QuoteInsurance",
			in: map[string]any{
				"scope":   map[string]any{"state_code": "GJ", "vehicle_type": "TWO_WHEELER", "insurer_name": "Acme"},
				"context": validCtx,
			},
			want: codes.NotFound,
		},
		{
			name:   "unhandled switch case",
			method: "QuoteInsurance",
			in: map[string]any{
				"rule": map[string]any{
					"kind": "INSURANCE",
					"od_components": []any{map[string]any{
						"id": "by-fuel", "type": "SWITCH", "label": "Fuel", "switch_variable": "FUEL_TYPE",
						"cases": []any{map[string]any{"match_value": "EV", "block": []any{}}},
					}},
				},
				"context": validCtx,
			},
			want: codes.FailedPrecondition,
		},
		{
			name:   "unknown quote",
			method: "GetQuote",
			in:     map[string]any{"quote_id": "0190b3a0-0000-7000-8000-000000000000"},
			want:   codes.NotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Call(context.Background(), tt.method, mustStruct(t, tt.in))
			if got := status.Code(err); got != tt.want {
				t.Errorf("code = %v, want %v (err %v)", got, tt.want, err)
			}
		})
	}
}
