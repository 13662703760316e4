package gpu

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"onetwotranscript/internal/config"
)

// CommandRunner executes an external command and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// GPUDetector handles GPU detection for the local whisper backends
type GPUDetector struct {
	logger    *zap.Logger
	run       CommandRunner
	getenv    func(string) string
	stat      func(string) (os.FileInfo, error)
	cudaRoots []string
}

// GPUInfo contains information about available GPU devices
type GPUInfo struct {
	Available     bool   `json:"available"`
	DeviceCount   int    `json:"device_count"`
	DeviceName    string `json:"device_name,omitempty"`
	CUDAVersion   string `json:"cuda_version,omitempty"`
	DriverVersion string `json:"driver_version,omitempty"`
	Source        string `json:"source,omitempty"`
}

// NewGPUDetector creates a new GPU detector instance
func NewGPUDetector(logger *zap.Logger) *GPUDetector {
	return &GPUDetector{
		logger:    logger,
		run:       execRunner,
		getenv:    os.Getenv,
		stat:      os.Stat,
		cudaRoots: []string{"/usr/local/cuda", "/opt/cuda", "/usr/cuda"},
	}
}

// DetectGPU probes nvidia-smi, then CUDA environment variables, then the
// toolkit directories. A machine without a GPU is not an error.
func (g *GPUDetector) DetectGPU(ctx context.Context) *GPUInfo {
	info := &GPUInfo{}

	if err := g.detectWithNvidiaSMI(ctx, info); err != nil {
		g.logger.Debug("nvidia-smi detection failed", zap.Error(err))
		if err := g.detectWithCUDAEnv(info); err != nil {
			g.logger.Debug("CUDA environment detection failed", zap.Error(err))
			if err := g.detectWithCUDAToolkit(info); err != nil {
				g.logger.Debug("CUDA toolkit detection failed", zap.Error(err))
				return &GPUInfo{}
			}
		}
	}

	g.logger.Info("GPU detection completed",
		zap.Bool("available", info.Available),
		zap.Int("device_count", info.DeviceCount),
		zap.String("device_name", info.DeviceName),
		zap.String("source", info.Source))

	return info
}

func (g *GPUDetector) detectWithNvidiaSMI(ctx context.Context, info *GPUInfo) error {
	countOutput, err := g.run(ctx, "nvidia-smi", "--list-gpus")
	if err != nil {
		return fmt.Errorf("nvidia-smi command failed: %w", err)
	}

	trimmed := strings.TrimSpace(string(countOutput))
	if trimmed == "" {
		return fmt.Errorf("no GPUs found by nvidia-smi")
	}
	deviceCount := len(strings.Split(trimmed, "\n"))

	infoOutput, err := g.run(ctx, "nvidia-smi", "--query-gpu=name,driver_version", "--format=csv,noheader,nounits", "--id=0")
	if err != nil {
		return fmt.Errorf("nvidia-smi info query failed: %w", err)
	}

	firstLine := strings.SplitN(strings.TrimSpace(string(infoOutput)), "\n", 2)[0]
	parts := strings.Split(firstLine, ",")
	if len(parts) < 2 {
		return fmt.Errorf("unexpected nvidia-smi info format: %s", firstLine)
	}

	info.Available = true
	info.DeviceCount = deviceCount
	info.DeviceName = strings.TrimSpace(parts[0])
	info.DriverVersion = strings.TrimSpace(parts[1])
	info.CUDAVersion = g.getenv("CUDA_VERSION")
	info.Source = "nvidia-smi"
	return nil
}

func (g *GPUDetector) detectWithCUDAEnv(info *GPUInfo) error {
	cudaVersion := g.getenv("CUDA_VERSION")
	visibleDevices := strings.TrimSpace(g.getenv("CUDA_VISIBLE_DEVICES"))

	if cudaVersion == "" && visibleDevices == "" {
		return fmt.Errorf("no CUDA environment variables found")
	}

	info.CUDAVersion = cudaVersion
	info.Source = "environment"

	// "-1" or an empty list hides every device
	if visibleDevices == "" || visibleDevices == "-1" {
		return nil
	}

	info.DeviceCount = len(strings.Split(visibleDevices, ","))
	info.Available = true
	return nil
}

func (g *GPUDetector) detectWithCUDAToolkit(info *GPUInfo) error {
	for _, root := range g.cudaRoots {
		if _, err := g.stat(filepath.Join(root, "bin", "nvcc")); err != nil {
			continue
		}
		info.Available = true
		info.DeviceCount = 1
		info.Source = "toolkit:" + root
		return nil
	}
	return fmt.Errorf("CUDA toolkit not found in standard locations")
}

// IsCUDAAvailable checks if CUDA is available and can be used
func (g *GPUDetector) IsCUDAAvailable(ctx context.Context) bool {
	return g.DetectGPU(ctx).Available
}

// ResolveDevice turns a configured device (auto, cpu, cuda) into cpu or cuda
func (g *GPUDetector) ResolveDevice(ctx context.Context, configured string) string {
	switch configured {
	case config.DeviceCPU:
		return config.DeviceCPU
	case config.DeviceCUDA:
		if !g.IsCUDAAvailable(ctx) {
			g.logger.Warn("cuda requested but no GPU detected; whisper may fall back to cpu")
		}
		return config.DeviceCUDA
	default:
		if g.IsCUDAAvailable(ctx) {
			return config.DeviceCUDA
		}
		return config.DeviceCPU
	}
}
