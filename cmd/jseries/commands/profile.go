package commands

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
)

// profiles captures optional CPU and heap profiles around a build.
type profiles struct {
	cpuPath  string
	heapPath string
	cpuFile  *os.File
}

// start begins CPU profiling when a path is set.
func (p *profiles) start() error {
	if p.cpuPath == "" {
		return nil
	}

	f, err := os.Create(p.cpuPath)
	if err != nil {
		return fmt.Errorf("create cpu profile: %w", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()

		return fmt.Errorf("start cpu profile: %w", err)
	}

	p.cpuFile = f

	return nil
}

// stop ends CPU profiling and writes the heap profile. Failures are only
// logged.
func (p *profiles) stop(logger *slog.Logger) {
	if p.cpuFile != nil {
		pprof.StopCPUProfile()

		if err := p.cpuFile.Close(); err != nil {
			logger.Warn("close cpu profile", "path", p.cpuPath, "error", err)
		}

		p.cpuFile = nil
	}

	if p.heapPath == "" {
		return
	}

	f, err := os.Create(p.heapPath)
	if err != nil {
		logger.Warn("create heap profile", "path", p.heapPath, "error", err)

		return
	}
	defer f.Close()

	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		logger.Warn("write heap profile", "path", p.heapPath, "error", err)
	}
}
