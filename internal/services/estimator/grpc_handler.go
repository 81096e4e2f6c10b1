package estimator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeonardoBeccarini/rootwater/internal/config"
	"github.com/LeonardoBeccarini/rootwater/internal/metrics"
	"github.com/LeonardoBeccarini/rootwater/internal/model"
	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
	"github.com/LeonardoBeccarini/rootwater/pkg/sapflow"
	"github.com/LeonardoBeccarini/rootwater/pkg/timeseries"
)

// GrpcHandler implements EstimatorServer on the configured fields.
type GrpcHandler struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewGrpcHandler(cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *GrpcHandler {
	return &GrpcHandler{cfg: cfg, metrics: m, log: log}
}

func (h *GrpcHandler) site(req RWURequest) (model.Probe, error) {
	if req.FieldID != "" || req.ProbeID != "" {
		p, ok := h.cfg.Probe(req.FieldID, req.ProbeID)
		if !ok {
			return model.Probe{}, status.Errorf(codes.NotFound, "unknown probe %s/%s", req.FieldID, req.ProbeID)
		}
		return p, nil
	}
	if req.Site == nil {
		return model.Probe{}, status.Error(codes.InvalidArgument, "field_id/probe_id or site is required")
	}
	return *req.Site, nil
}

func (h *GrpcHandler) EstimateRWU(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RWURequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	probe, err := h.site(req)
	if err != nil {
		return nil, err
	}
	if len(req.Times) != len(req.Values) {
		return nil, status.Errorf(codes.InvalidArgument, "%d times for %d values", len(req.Times), len(req.Values))
	}
	values := make([]float64, len(req.Values))
	for i, v := range req.Values {
		values[i] = v.Float()
	}
	series, err := timeseries.New(probe.ID, req.Times, values)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	days, err := rootwater.Estimate(ctx, series.In(probe.Location()), h.cfg.ProbeParams(probe))
	h.metrics.Duration.WithLabelValues("grpc_estimate").Observe(time.Since(start).Seconds())
	switch {
	case errors.Is(err, rootwater.ErrEmptySeries):
		days = nil
	case errors.Is(err, rootwater.ErrInvalidParams), errors.Is(err, rootwater.ErrIrregularSeries):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case ctx.Err() != nil:
		return nil, status.FromContextError(ctx.Err()).Err()
	case err != nil:
		h.log.Error("estimate", zap.String("probe_id", probe.ID), zap.Error(err))
		return nil, status.Error(codes.Internal, err.Error())
	}

	resp := RWUResponse{FieldID: probe.FieldID, ProbeID: probe.ID, Days: make([]model.DayRecord, 0, len(days))}
	for _, d := range days {
		if req.Safe {
			d = d.Filtered()
		}
		resp.Days = append(resp.Days, model.NewDayRecord(d))
		h.metrics.Estimates.WithLabelValues(metrics.Quality(d.Safe(), d.Skipped)).Inc()
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (h *GrpcHandler) ConvertSapFlow(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SapFlowRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	tree := req.Tree
	if tree == nil {
		t, ok := h.cfg.Tree(req.FieldID, req.TreeID)
		if !ok {
			return nil, status.Errorf(codes.NotFound, "unknown tree %s/%s", req.FieldID, req.TreeID)
		}
		tree = &t
	}
	st, err := tree.SapTree()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	// zero means unset
	perc := req.ActiveFraction
	if perc == 0 {
		perc = h.cfg.SapFlow.ActiveFraction
	}

	q, err := sapflow.ConvertReading(st, req.Inner, req.Mid, req.Outer, perc)
	switch {
	case errors.Is(err, sapflow.ErrInvalidActiveFraction):
		return nil, status.Errorf(codes.InvalidArgument, "active_fraction: %v", err)
	case err != nil:
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	out, err := toStruct(SapFlowResponse{
		Inner: model.Number(q.Inner),
		Mid:   model.Number(q.Mid),
		Outer: model.Number(q.Outer),
		Total: model.Number(q.Total()),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// UnaryLogger logs every call with its status code.
func UnaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Info("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("took", time.Since(start)))
		return resp, err
	}
}
