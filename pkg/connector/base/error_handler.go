package base

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vortexdata/ferry/pkg/errors"
	"github.com/vortexdata/ferry/pkg/pool"
)

// ErrorHandler handles errors with categorization and retry classification
type ErrorHandler struct {
	logger        *zap.Logger
	maxRetries    int
	baseDelay     time.Duration
	errorCounts   map[string]int64
	errorMutex    sync.RWMutex
	totalErrors   int64
	retriedErrors int64
	fatalErrors   int64
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger, maxRetries int, baseDelay time.Duration) *ErrorHandler {
	return &ErrorHandler{
		logger:      logger,
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		errorCounts: make(map[string]int64),
	}
}

// HandleError processes an error, logging it with context and classifying
// it as retryable or fatal.
func (eh *ErrorHandler) HandleError(ctx context.Context, err error, record *pool.Record) error {
	if err == nil {
		return nil
	}

	atomic.AddInt64(&eh.totalErrors, 1)

	errorType := eh.categorizeError(err)
	eh.incrementErrorCount(errorType)

	fields := []zap.Field{
		zap.Error(err),
		zap.String("error_type", errorType),
	}
	if record != nil {
		fields = append(fields, zap.String("record_id", record.ID))
	}

	if eh.ShouldRetry(err) {
		atomic.AddInt64(&eh.retriedErrors, 1)
		eh.logger.Warn("retryable error occurred", fields...)
		return errors.Wrap(err, errors.ErrorTypeTimeout, "error can be retried")
	}

	atomic.AddInt64(&eh.fatalErrors, 1)
	eh.logger.Error("fatal error occurred", fields...)
	return errors.Wrap(err, errors.ErrorTypeInternal, "error cannot be retried")
}

// ShouldRetry determines if an error should be retried
func (eh *ErrorHandler) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if errors.IsType(err, errors.ErrorTypeInternal) ||
		errors.IsType(err, errors.ErrorTypeValidation) ||
		errors.IsType(err, errors.ErrorTypeConfig) {
		return false
	}

	if errors.IsRetryable(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	// Transient I/O conditions worth retrying
	for _, s := range []string{"timeout", "temporarily unavailable", "connection reset", "too many open files"} {
		if strings.Contains(errStr, s) {
			return true
		}
	}

	return false
}

// Stats returns error handling counters
func (eh *ErrorHandler) Stats() (total, retried, fatal int64) {
	return atomic.LoadInt64(&eh.totalErrors),
		atomic.LoadInt64(&eh.retriedErrors),
		atomic.LoadInt64(&eh.fatalErrors)
}

func (eh *ErrorHandler) categorizeError(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return string(e.Type)
	}
	return "unknown"
}

func (eh *ErrorHandler) incrementErrorCount(errorType string) {
	eh.errorMutex.Lock()
	eh.errorCounts[errorType]++
	eh.errorMutex.Unlock()
}
