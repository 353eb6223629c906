package klogging

import (
	"context"
	"sync"
)

type ctxKey int

var ctxInfoKey ctxKey

// CtxInfo carries key/values that get attached to every log entry created from the ctx.
// Child infos see everything their parents carry.
type CtxInfo struct {
	Parent  *CtxInfo
	mu      sync.RWMutex
	Details map[string]string
}

// GetCurrentCtxInfo returns nil when ctx carries no CtxInfo.
func GetCurrentCtxInfo(ctx context.Context) *CtxInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(ctxInfoKey).(*CtxInfo)
	return info
}

// CreateCtxInfo creates a child info using the info in ctx (if any) as parent.
func CreateCtxInfo(ctx context.Context) (context.Context, *CtxInfo) {
	info := &CtxInfo{
		Parent:  GetCurrentCtxInfo(ctx),
		Details: map[string]string{},
	}
	return context.WithValue(ctx, ctxInfoKey, info), info
}

func (info *CtxInfo) With(k string, v string) *CtxInfo {
	info.mu.Lock()
	defer info.mu.Unlock()
	info.Details[k] = v
	return info
}

// VisitForward visits top-level parents first, then children. nil-safe.
func (info *CtxInfo) VisitForward(visitor func(k string, v string)) {
	if info == nil {
		return
	}
	info.Parent.VisitForward(visitor)
	info.mu.RLock()
	defer info.mu.RUnlock()
	for k, v := range info.Details {
		if v != "" {
			visitor(k, v)
		}
	}
}

// FindByKey returns fallback if neither this info nor any parent has k.
func (info *CtxInfo) FindByKey(k string, fallback string) string {
	if info == nil {
		return fallback
	}
	info.mu.RLock()
	v, ok := info.Details[k]
	info.mu.RUnlock()
	if ok && v != "" {
		return v
	}
	return info.Parent.FindByKey(k, fallback)
}

// EmbedTraceId returns a ctx whose log entries all carry traceId.
func EmbedTraceId(ctx context.Context, traceId string) context.Context {
	ctx2, info := CreateCtxInfo(ctx)
	info.With("traceId", traceId)
	return ctx2
}
