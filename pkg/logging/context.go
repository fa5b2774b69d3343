package logging

import (
	"context"
)

const (
	RequestIDKey = "request_id"
	CycleIDKey   = "cycle_id"
	FarmerIDKey  = "farmer_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, CycleIDKey, cycleID)
}

func WithFarmerID(ctx context.Context, farmerID string) context.Context {
	return context.WithValue(ctx, FarmerIDKey, farmerID)
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func GetCycleID(ctx context.Context) string {
	if cycleID, ok := ctx.Value(CycleIDKey).(string); ok {
		return cycleID
	}
	return ""
}

func GetFarmerID(ctx context.Context) string {
	if farmerID, ok := ctx.Value(FarmerIDKey).(string); ok {
		return farmerID
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}

	if cycleID := GetCycleID(ctx); cycleID != "" {
		fields = append(fields, "cycle_id", cycleID)
	}

	if farmerID := GetFarmerID(ctx); farmerID != "" {
		fields = append(fields, "farmer_id", farmerID)
	}

	return fields
}
