package monitoring

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/prometheus/procfs"
)

// Sampler снимает загрузку CPU и памяти
type Sampler interface {
	// CPUPercent загрузка CPU в процентах с предыдущего вызова
	CPUPercent() (float64, error)
	// Memory занятая и общая память в байтах
	Memory() (used, total uint64, err error)
}

// ProcSampler читает /proc. На системах без procfs память берётся из runtime.
type ProcSampler struct {
	fs procfs.FS
	ok bool

	mu        sync.Mutex
	prevBusy  float64
	prevTotal float64
}

// NewProcSampler создаёт сэмплер; ошибка открытия /proc не фатальна
func NewProcSampler() *ProcSampler {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return &ProcSampler{}
	}
	return newProcSampler(fs)
}

// newProcSampler запоминает текущие счётчики CPU, первый CPUPercent считает от них
func newProcSampler(fs procfs.FS) *ProcSampler {
	s := &ProcSampler{fs: fs, ok: true}
	if busy, total, err := s.cpuTimes(); err == nil {
		s.prevBusy, s.prevTotal = busy, total
	}
	return s
}

func (s *ProcSampler) cpuTimes() (busy, total float64, err error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read /proc/stat: %w", err)
	}
	c := stat.CPUTotal
	idle := c.Idle + c.Iowait
	busy = c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	return busy, busy + idle, nil
}

func (s *ProcSampler) CPUPercent() (float64, error) {
	if !s.ok {
		return 0, fmt.Errorf("procfs is not available")
	}

	busy, total, err := s.cpuTimes()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dBusy, dTotal := busy-s.prevBusy, total-s.prevTotal
	s.prevBusy, s.prevTotal = busy, total

	if dTotal <= 0 {
		return 0, nil
	}
	return cpuPercent(dBusy, dTotal), nil
}

func (s *ProcSampler) Memory() (uint64, uint64, error) {
	if s.ok {
		info, err := s.fs.Meminfo()
		if err == nil && info.MemTotal != nil && info.MemAvailable != nil {
			total := *info.MemTotal * 1024
			available := *info.MemAvailable * 1024
			if available > total {
				available = total
			}
			return total - available, total, nil
		}
	}
	return runtimeMemory()
}

// runtimeMemory память процесса Go: занято кучей из полученной от ОС
func runtimeMemory() (uint64, uint64, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc, m.Sys, nil
}

func cpuPercent(busy, total float64) float64 {
	if total <= 0 {
		return 0
	}
	p := busy / total * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
