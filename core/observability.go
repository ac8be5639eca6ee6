package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	elapsed := time.Since(startedAt)

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = elapsed.Milliseconds()

	tags := map[string]string{
		"operation": operation,
		"status":    status,
		"code":      "",
	}
	if err != nil {
		code := TextCode(err)
		contextFields["error"] = err.Error()
		contextFields["error_code"] = code
		tags["code"] = code
	}

	s.recordCounter(ctx, MetricOperationTotal, 1, tags)
	s.recordHistogram(ctx, MetricOperationDurationMS, float64(elapsed.Milliseconds()), tags)

	switch {
	case err == nil:
		s.logWithLevel(ctx, "info", operation+" succeeded", contextFields)
	case TextCode(err) == ServiceErrorSignatureInvalid:
		contextFields["potential_forgery"] = true
		s.recordCounter(ctx, MetricSignatureRejected, 1, map[string]string{"operation": operation})
		s.logWithLevel(ctx, "warn", operation+" rejected", contextFields)
	case TextCode(err) == ServiceErrorStateMismatch:
		s.logWithLevel(ctx, "warn", operation+" rejected", contextFields)
	case TextCode(err) == ServiceErrorMissingParameter, TextCode(err) == ServiceErrorInvalidShopDomain:
		s.logWithLevel(ctx, "info", operation+" rejected", contextFields)
	default:
		s.logWithLevel(ctx, "error", operation+" failed", contextFields)
	}
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	fields = RedactSensitiveMap(fields)
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
		fields = nil
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
