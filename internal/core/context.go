package core

import "context"

type contextKey string

const ctxKeyEditor contextKey = "editor"

// ContextWithEditor records who is making a change. The name is stamped on
// saved settings and included in operation logs.
func ContextWithEditor(ctx context.Context, editor string) context.Context {
	return context.WithValue(ctx, ctxKeyEditor, editor)
}

// EditorFromContext returns the editor set by ContextWithEditor or "".
func EditorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyEditor).(string); ok {
		return v
	}
	return ""
}
