package onnx

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var pathOnce sync.Once
var libPath string

// LibPath returns the ONNX Runtime shared library to load. An explicit path
// (config libonnx or SUPERRES_LIBONNX) wins; otherwise well-known install
// locations for the current OS are probed.
func LibPath(configured string) string {
	pathOnce.Do(func() {
		libPath = loadLibPath(configured)
		if libPath == "" {
			slog.Error("ONNX Runtime library path could not be determined for this OS")
		} else {
			slog.Info("Using ONNX Runtime library", slog.String("path", libPath))
		}
	})
	return libPath
}

func loadLibPath(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv("SUPERRES_LIBONNX"); env != "" {
		return env
	}
	for _, path := range candidates(runtime.GOOS, runtime.GOARCH) {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func candidates(goos, goarch string) []string {
	switch goos {
	case "linux":
		name := "libonnxruntime.so"
		return []string{
			filepath.Join("onnxlibs", fmt.Sprintf("libonnxruntime-linux-%s.so", goarch)),
			filepath.Join("onnxlibs", name),
			filepath.Join("/usr/local/lib", name),
			filepath.Join("/usr/lib", name),
		}
	case "darwin":
		return []string{
			filepath.Join("onnxlibs", "libonnxruntime.dylib"),
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
	case "windows":
		return []string{filepath.Join("onnxlibs", "onnxruntime.dll"), "onnxruntime.dll"}
	default:
		return nil
	}
}

// Init loads the shared library and initializes the ONNX Runtime
// environment. The returned func tears the environment down.
func Init(configured string) (func(), error) {
	path := LibPath(configured)
	if path == "" {
		return func() {}, fmt.Errorf("onnxruntime shared library not found for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return func() {}, fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
	}
	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Error("Failed to destroy ONNX Runtime environment", slog.String("error", err.Error()))
		}
	}, nil
}
