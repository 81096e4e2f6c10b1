// Package estimator serves the RWU estimator and the sap flow conversion
// over gRPC. Messages are google.protobuf.Struct values holding the JSON
// form of the request and response types below.
package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeonardoBeccarini/rootwater/internal/model"
)

const (
	ServiceName          = "rootwater.Estimator"
	EstimateRWUMethod    = "/" + ServiceName + "/EstimateRWU"
	ConvertSapFlowMethod = "/" + ServiceName + "/ConvertSapFlow"
)

// RWURequest carries a moisture series of one probe. The site comes from
// the configured probe, or from Site when FieldID/ProbeID are empty.
type RWURequest struct {
	FieldID string         `json:"field_id,omitempty"`
	ProbeID string         `json:"probe_id,omitempty"`
	Site    *model.Probe   `json:"site,omitempty"`
	Times   []time.Time    `json:"times"`
	Values  []model.Number `json:"values"` // vol.%, null for gaps
	Safe    bool           `json:"safe"`
}

type RWUResponse struct {
	FieldID string            `json:"field_id"`
	ProbeID string            `json:"probe_id"`
	Days    []model.DayRecord `json:"days"`
}

// SapFlowRequest carries one three-point velocity reading (cm/h). Tree
// overrides the configured tree geometry.
type SapFlowRequest struct {
	FieldID        string      `json:"field_id,omitempty"`
	TreeID         string      `json:"tree_id,omitempty"`
	Tree           *model.Tree `json:"tree,omitempty"`
	Inner          float64     `json:"inner"`
	Mid            float64     `json:"mid"`
	Outer          float64     `json:"outer"`
	ActiveFraction float64     `json:"active_fraction,omitempty"`
}

// SapFlowResponse holds the flows (cm³/h) of the three sapwood rings.
type SapFlowResponse struct {
	Inner model.Number `json:"inner"`
	Mid   model.Number `json:"mid"`
	Outer model.Number `json:"outer"`
	Total model.Number `json:"total"`
}

// EstimatorServer is the server API of rootwater.Estimator.
type EstimatorServer interface {
	EstimateRWU(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConvertSapFlow(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterEstimatorServer(s grpc.ServiceRegistrar, srv EstimatorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EstimatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "EstimateRWU", Handler: estimateRWUHandler},
		{MethodName: "ConvertSapFlow", Handler: convertSapFlowHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rootwater/estimator",
}

func estimateRWUHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EstimatorServer).EstimateRWU(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EstimateRWUMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EstimatorServer).EstimateRWU(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func convertSapFlowHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EstimatorServer).ConvertSapFlow(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ConvertSapFlowMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EstimatorServer).ConvertSapFlow(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// toStruct encodes v through its JSON form.
func toStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("struct: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v interface{}) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
