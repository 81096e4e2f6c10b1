package estimator

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

// Client is a typed client of rootwater.Estimator.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// NewRWURequest builds a request for a configured probe.
func NewRWURequest(fieldID, probeID string, s *timeseries.Series, safe bool) RWURequest {
	req := RWURequest{FieldID: fieldID, ProbeID: probeID, Safe: safe}
	req.Times = append(req.Times, s.Times...)
	req.Values = make([]model.Number, len(s.Values))
	for i, v := range s.Values {
		req.Values[i] = model.Number(v)
	}
	return req
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}, opts ...grpc.CallOption) error {
	in, err := toStruct(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return err
	}
	if err := fromStruct(out, resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) EstimateRWU(ctx context.Context, req RWURequest, opts ...grpc.CallOption) (RWUResponse, error) {
	var resp RWUResponse
	err := c.invoke(ctx, EstimateRWUMethod, req, &resp, opts...)
	return resp, err
}

func (c *Client) ConvertSapFlow(ctx context.Context, req SapFlowRequest, opts ...grpc.CallOption) (SapFlowResponse, error) {
	var resp SapFlowResponse
	err := c.invoke(ctx, ConvertSapFlowMethod, req, &resp, opts...)
	return resp, err
}
