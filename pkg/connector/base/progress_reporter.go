package base

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vortexdata/ferry/pkg/metrics"
)

// ProgressReporter tracks and reports progress of long-running operations.
// Reports are rate-limited so tight read loops do not flood the log.
type ProgressReporter struct {
	logger           *zap.Logger
	metricsCollector *metrics.Collector

	totalRecords     int64
	processedRecords int64
	startTime        time.Time
	lastReport       atomic.Int64 // unix nanos of last log line
	reportInterval   time.Duration
}

// NewProgressReporter creates a new progress reporter
func NewProgressReporter(logger *zap.Logger, collector *metrics.Collector) *ProgressReporter {
	return &ProgressReporter{
		logger:           logger,
		metricsCollector: collector,
		startTime:        time.Now(),
		reportInterval:   10 * time.Second,
	}
}

// SetTotal sets the total number of records to process
func (pr *ProgressReporter) SetTotal(total int64) {
	atomic.StoreInt64(&pr.totalRecords, total)
}

// ReportProgress records progress and periodically logs it
func (pr *ProgressReporter) ReportProgress(processed, total int64) {
	atomic.StoreInt64(&pr.processedRecords, processed)
	if total > 0 {
		atomic.StoreInt64(&pr.totalRecords, total)
	}

	now := time.Now().UnixNano()
	last := pr.lastReport.Load()
	if now-last < int64(pr.reportInterval) {
		return
	}
	if !pr.lastReport.CompareAndSwap(last, now) {
		return
	}

	elapsed := time.Since(pr.startTime).Seconds()
	rps := 0.0
	if elapsed > 0 {
		rps = float64(processed) / elapsed
	}
	pr.metricsCollector.SetThroughput(rps)

	fields := []zap.Field{
		zap.Int64("processed", processed),
		zap.Float64("records_per_second", rps),
	}
	if t := atomic.LoadInt64(&pr.totalRecords); t > 0 {
		fields = append(fields, zap.Int64("total", t),
			zap.Float64("percent", float64(processed)/float64(t)*100))
	}
	pr.logger.Info("progress", fields...)
}

// Processed returns the number of processed records
func (pr *ProgressReporter) Processed() int64 {
	return atomic.LoadInt64(&pr.processedRecords)
}
