package types

import "context"

type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxTenantID      ContextKey = "ctx_tenant_id"
	CtxEnvironmentID ContextKey = "ctx_environment_id"
	CtxUserID        ContextKey = "ctx_user_id"
)

func GetRequestID(ctx context.Context) string {
	return ctxString(ctx, CtxRequestID)
}

func GetTenantID(ctx context.Context) string {
	return ctxString(ctx, CtxTenantID)
}

func GetEnvironmentID(ctx context.Context) string {
	return ctxString(ctx, CtxEnvironmentID)
}

func GetUserID(ctx context.Context) string {
	return ctxString(ctx, CtxUserID)
}

func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxRequestID, id)
}

func SetTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxTenantID, id)
}

func SetEnvironmentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxEnvironmentID, id)
}

func SetUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxUserID, id)
}

func ctxString(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
