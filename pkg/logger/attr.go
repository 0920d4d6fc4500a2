package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// SubscriptionID records the subscription identifier under the key "subscription_id".
// If id is nil, it returns an empty Attr.
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

// StoreID records the tenant store identifier under the key "store_id".
// If id is nil, it returns an empty Attr.
func StoreID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("store_id", id)
}

// UserID records the acting user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// EventType records the lifecycle event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Version records an event version under the key "version".
func Version(v int64) slog.Attr {
	return slog.Int64("version", v)
}

// Trigger records the transition trigger under the key "trigger".
func Trigger(name string) slog.Attr {
	return slog.String("trigger", name)
}

// Transition groups a status change under the key "transition".
func Transition(from, to string) slog.Attr {
	return Group("transition", slog.String("from", from), slog.String("to", to))
}

// Table records the data store table name under the key "table".
func Table(name string) slog.Attr {
	return slog.String("table", name)
}

// Step records a transaction plan step index under the key "step".
func Step(i int) slog.Attr {
	return slog.Int("step", i)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
