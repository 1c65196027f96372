package logging

import (
	"context"
	"log/slog"
)

type fieldsKey struct{}

// Fields are the correlation ids known for a request or a live connection.
// Empty fields are not logged.
type Fields struct {
	RequestID    string
	SubjectID    string
	ConnectionID string
	Domain       string
}

// FieldsFrom returns the ids stored in ctx.
func FieldsFrom(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	f, _ := ctx.Value(fieldsKey{}).(Fields)
	return f
}

func withFields(ctx context.Context, update func(*Fields)) context.Context {
	f := FieldsFrom(ctx)
	update(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withFields(ctx, func(f *Fields) { f.RequestID = requestID })
}

// WithSubjectID adds the verified subject id to the context
func WithSubjectID(ctx context.Context, subjectID string) context.Context {
	return withFields(ctx, func(f *Fields) { f.SubjectID = subjectID })
}

// WithConnection tags ctx with a relay connection. The request id of the
// upgrade request is kept so a socket's logs can be traced to its handshake.
func WithConnection(ctx context.Context, connID, subjectID, domain string) context.Context {
	return withFields(ctx, func(f *Fields) {
		f.ConnectionID = connID
		f.SubjectID = subjectID
		f.Domain = domain
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	return FieldsFrom(ctx).RequestID
}

func (f Fields) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 4)
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	add("request_id", f.RequestID)
	add("subject_id", f.SubjectID)
	add("connection_id", f.ConnectionID)
	add("domain", f.Domain)
	return attrs
}
