package logging

import "log/slog"

// Common field names for consistent logging across components.
const (
	FieldService  = "service"
	FieldBatchID  = "batch_id"
	FieldBucket   = "bucket"
	FieldRows     = "rows"
	FieldBytes    = "bytes"
	FieldIP       = "ip"
	FieldError    = "error"
	FieldDuration = "duration_ms"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// BatchID returns a slog attribute for a batch identifier.
func BatchID(id string) slog.Attr {
	return slog.String(FieldBatchID, id)
}

// Bucket returns a slog attribute for the stage bucket name.
func Bucket(name string) slog.Attr {
	return slog.String(FieldBucket, name)
}

// Rows returns a slog attribute for an inserted-row count.
func Rows(n int) slog.Attr {
	return slog.Int(FieldRows, n)
}

// Bytes returns a slog attribute for a payload size.
func Bytes(n int) slog.Attr {
	return slog.Int(FieldBytes, n)
}

// IP returns a slog attribute for a client IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}
