// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// TelegramUserIDKey contains the authenticated Telegram user id
	// Set by: access.Authenticate after initData validation
	// Required by: role and hierarchical access gates, user-scoped handlers
	// Type: int64
	TelegramUserIDKey Key = "telegram_user_id"

	// UserKey contains *store.User
	// Set by: access.Authenticate, access.RequireRole, access.ProjectAccess,
	// access.StageAccess (whichever runs last wins; the value is identical)
	// Type: *store.User
	UserKey Key = "user"

	// InitDataKey contains *initdata.Result
	// Set by: access.Authenticate
	// Type: *initdata.Result
	InitDataKey Key = "init_data"

	// ProjectKey contains *store.Project
	// Set by: access.ProjectAccess
	// Type: *store.Project
	ProjectKey Key = "project"

	// StageKey contains *store.Stage
	// Set by: access.StageAccess
	// Type: *store.Stage
	StageKey Key = "stage"

	// RequestIDKey contains request ID string (UUID)
	// Set by: observability.RequestIDMiddleware
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithTelegramUserID adds the authenticated Telegram user id to the context
func WithTelegramUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, TelegramUserIDKey, id)
}

// TelegramUserID retrieves the Telegram user id from context. The second
// return value reports whether an authenticated id is present.
func TelegramUserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(TelegramUserIDKey).(int64)
	return id, ok
}

// WithUser adds the resolved user to the context
func WithUser(ctx context.Context, user interface{}) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// WithInitData adds the initData validation result to the context
func WithInitData(ctx context.Context, result interface{}) context.Context {
	return context.WithValue(ctx, InitDataKey, result)
}

// WithProject adds the resolved project to the context
func WithProject(ctx context.Context, project interface{}) context.Context {
	return context.WithValue(ctx, ProjectKey, project)
}

// WithStage adds the resolved stage to the context
func WithStage(ctx context.Context, stage interface{}) context.Context {
	return context.WithValue(ctx, StageKey, stage)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
