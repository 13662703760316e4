package performance

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// PerformanceMetrics tracks transcription performance metrics
type PerformanceMetrics struct {
	TotalTranscriptions  int64         `json:"total_transcriptions"`
	FailedTranscriptions int64         `json:"failed_transcriptions"`
	CacheHits            int64         `json:"cache_hits"`
	TotalAudioBytes      int64         `json:"total_audio_bytes"`
	TotalAudioSeconds    float64       `json:"total_audio_seconds"`
	TotalSegments        int64         `json:"total_segments"`
	TotalProcessingTime  time.Duration `json:"total_processing_ns"`
	GPUTranscriptions    int64         `json:"gpu_transcriptions"`
	CPUTranscriptions    int64         `json:"cpu_transcriptions"`
	GPUProcessingTime    time.Duration `json:"gpu_processing_ns"`
	CPUProcessingTime    time.Duration `json:"cpu_processing_ns"`
	AvgTranscriptionTime time.Duration `json:"avg_processing_ns"`
	MinTranscriptionTime time.Duration `json:"min_processing_ns"`
	MaxTranscriptionTime time.Duration `json:"max_processing_ns"`
	LastBackend          string        `json:"last_backend,omitempty"`
	LastGPUUsed          bool          `json:"last_gpu_used"`
	LastProcessingTime   time.Duration `json:"last_processing_ns"`
	LastAudioBytes       int64         `json:"last_audio_bytes"`
	LastTimestamp        time.Time     `json:"last_timestamp"`
}

// RealTimeFactor is processing time divided by audio duration; below 1 is faster than real time
func (m PerformanceMetrics) RealTimeFactor() float64 {
	if m.TotalAudioSeconds <= 0 {
		return 0
	}
	return m.TotalProcessingTime.Seconds() / m.TotalAudioSeconds
}

// TranscriptionTimer tracks timing for individual transcriptions
type TranscriptionTimer struct {
	StartTime      time.Time
	AudioBytes     int64
	Backend        string
	UseGPU         bool
	ProcessingTime time.Duration
}

// PerformanceMonitor handles performance tracking and reporting
type PerformanceMonitor struct {
	logger    *zap.Logger
	metrics   PerformanceMetrics
	mu        sync.RWMutex
	benchmark bool
}

func freshMetrics() PerformanceMetrics {
	return PerformanceMetrics{LastTimestamp: time.Now()}
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor(logger *zap.Logger) *PerformanceMonitor {
	return NewPerformanceMonitorWithBenchmark(logger, false)
}

// NewPerformanceMonitorWithBenchmark creates a performance monitor with benchmarking enabled
func NewPerformanceMonitorWithBenchmark(logger *zap.Logger, benchmark bool) *PerformanceMonitor {
	return &PerformanceMonitor{
		logger:    logger,
		metrics:   freshMetrics(),
		benchmark: benchmark,
	}
}

// StartTranscription begins timing a transcription operation
func (pm *PerformanceMonitor) StartTranscription(audioBytes int64, backend string, useGPU bool) *TranscriptionTimer {
	return &TranscriptionTimer{
		StartTime:  time.Now(),
		AudioBytes: audioBytes,
		Backend:    backend,
		UseGPU:     useGPU,
	}
}

// EndTranscription completes timing and updates metrics for a successful job.
// audioSeconds is the end of the last segment.
func (pm *PerformanceMonitor) EndTranscription(timer *TranscriptionTimer, segments int, audioSeconds float64) {
	timer.ProcessingTime = time.Since(timer.StartTime)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	m := &pm.metrics
	m.TotalTranscriptions++
	m.TotalAudioBytes += timer.AudioBytes
	m.TotalAudioSeconds += audioSeconds
	m.TotalSegments += int64(segments)
	m.TotalProcessingTime += timer.ProcessingTime
	m.LastProcessingTime = timer.ProcessingTime
	m.LastAudioBytes = timer.AudioBytes
	m.LastBackend = timer.Backend
	m.LastGPUUsed = timer.UseGPU
	m.LastTimestamp = time.Now()

	if timer.UseGPU {
		m.GPUTranscriptions++
		m.GPUProcessingTime += timer.ProcessingTime
	} else {
		m.CPUTranscriptions++
		m.CPUProcessingTime += timer.ProcessingTime
	}

	if m.TotalTranscriptions == 1 || timer.ProcessingTime < m.MinTranscriptionTime {
		m.MinTranscriptionTime = timer.ProcessingTime
	}
	if timer.ProcessingTime > m.MaxTranscriptionTime {
		m.MaxTranscriptionTime = timer.ProcessingTime
	}
	m.AvgTranscriptionTime = time.Duration(int64(m.TotalProcessingTime) / m.TotalTranscriptions)

	if pm.benchmark {
		fields := []zap.Field{
			zap.String("backend", timer.Backend),
			zap.Bool("use_gpu", timer.UseGPU),
			zap.Int64("audio_bytes", timer.AudioBytes),
			zap.Float64("audio_seconds", audioSeconds),
			zap.Int("segments", segments),
			zap.Duration("processing_time", timer.ProcessingTime),
		}
		if audioSeconds > 0 {
			fields = append(fields, zap.Float64("real_time_factor", timer.ProcessingTime.Seconds()/audioSeconds))
		}
		pm.logger.Info("transcription performance", fields...)
	}
}

// FailTranscription records a job that returned an error
func (pm *PerformanceMonitor) FailTranscription(timer *TranscriptionTimer) {
	timer.ProcessingTime = time.Since(timer.StartTime)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.metrics.FailedTranscriptions++
	pm.metrics.LastTimestamp = time.Now()
}

// RecordCacheHit records a job answered from the transcript cache
func (pm *PerformanceMonitor) RecordCacheHit(audioBytes int64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.metrics.CacheHits++
	pm.metrics.LastTimestamp = time.Now()

	if pm.benchmark {
		pm.logger.Info("transcription served from cache", zap.Int64("audio_bytes", audioBytes))
	}
}

// GetMetrics returns a copy of current metrics
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.metrics
}

// GetPerformanceSummary returns a formatted summary of performance metrics
func (pm *PerformanceMonitor) GetPerformanceSummary() string {
	m := pm.GetMetrics()

	if m.TotalTranscriptions == 0 && m.CacheHits == 0 {
		return "No transcription metrics available"
	}

	var b strings.Builder
	b.WriteString("Performance Summary:\n")
	fmt.Fprintf(&b, "  Total Transcriptions: %s (%s failed, %s from cache)\n",
		humanize.Comma(m.TotalTranscriptions), humanize.Comma(m.FailedTranscriptions), humanize.Comma(m.CacheHits))
	if m.TotalTranscriptions > 0 {
		gpuPercent := float64(m.GPUTranscriptions) / float64(m.TotalTranscriptions) * 100
		fmt.Fprintf(&b, "  GPU Usage: %.1f%% (%d GPU, %d CPU)\n", gpuPercent, m.GPUTranscriptions, m.CPUTranscriptions)
		fmt.Fprintf(&b, "  Avg Processing Time: %v\n", m.AvgTranscriptionTime)
		fmt.Fprintf(&b, "  Min/Max Processing Time: %v / %v\n", m.MinTranscriptionTime, m.MaxTranscriptionTime)
	}
	fmt.Fprintf(&b, "  Total Audio Processed: %s (%.1f s, %s segments)\n",
		humanize.IBytes(uint64(m.TotalAudioBytes)), m.TotalAudioSeconds, humanize.Comma(m.TotalSegments))
	if rtf := m.RealTimeFactor(); rtf > 0 {
		fmt.Fprintf(&b, "  Real-time Factor: %.2f\n", rtf)
	}

	return b.String()
}

// CompareGPUvsCPU returns the measured average processing time per device
func (pm *PerformanceMonitor) CompareGPUvsCPU() string {
	m := pm.GetMetrics()

	if m.GPUTranscriptions == 0 || m.CPUTranscriptions == 0 {
		return "Insufficient data for GPU vs CPU comparison"
	}

	gpuAvg := time.Duration(int64(m.GPUProcessingTime) / m.GPUTranscriptions)
	cpuAvg := time.Duration(int64(m.CPUProcessingTime) / m.CPUTranscriptions)
	improvement := 0.0
	if cpuAvg > 0 {
		improvement = float64(cpuAvg-gpuAvg) / float64(cpuAvg) * 100
	}

	return fmt.Sprintf(
		"GPU vs CPU Performance Comparison:\n"+
			"  GPU Transcriptions: %d (avg %v)\n"+
			"  CPU Transcriptions: %d (avg %v)\n"+
			"  GPU Improvement: %.1f%%\n",
		m.GPUTranscriptions, gpuAvg,
		m.CPUTranscriptions, cpuAvg,
		improvement,
	)
}

// LogCurrentMetrics logs the current performance metrics
func (pm *PerformanceMonitor) LogCurrentMetrics() {
	m := pm.GetMetrics()

	pm.logger.Info("current performance metrics",
		zap.Int64("total_transcriptions", m.TotalTranscriptions),
		zap.Int64("failed_transcriptions", m.FailedTranscriptions),
		zap.Int64("cache_hits", m.CacheHits),
		zap.Int64("gpu_transcriptions", m.GPUTranscriptions),
		zap.Int64("cpu_transcriptions", m.CPUTranscriptions),
		zap.Duration("avg_processing_time", m.AvgTranscriptionTime),
		zap.Duration("last_processing_time", m.LastProcessingTime),
		zap.String("last_backend", m.LastBackend),
	)
}
