// Package sysstats implements the system-stats collector: CPU and
// memory figures read from /proc, sampled on a poll interval and
// exposed as a snapshot plus a broadcast feed.
package sysstats

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/webmux/internal/wire"
)

// Collector samples /proc/stat and /proc/meminfo on a ticker and keeps
// the latest reading available for on-demand snapshots.
type Collector struct {
	pollInterval time.Duration

	mu       sync.RWMutex
	latest   wire.Stats
	prevIdle uint64
	prevTot  uint64
}

func New(pollInterval time.Duration) *Collector {
	return &Collector{pollInterval: pollInterval}
}

// Snapshot returns the most recently sampled stats. Before the first
// sample, this is the zero value.
func (c *Collector) Snapshot() wire.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Run samples immediately, then on every tick, until ctx is done. on
// is called with each new sample — the gateway wires it to broadcast
// a "stats" message to every client.
func (c *Collector) Run(ctx context.Context, on func(wire.Stats)) {
	c.sampleOnce(on)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sampleOnce(on)
		}
	}
}

func (c *Collector) sampleOnce(on func(wire.Stats)) {
	stats, err := c.sample()
	if err != nil {
		return
	}
	c.mu.Lock()
	c.latest = stats
	c.mu.Unlock()
	if on != nil {
		on(stats)
	}
}

func (c *Collector) sample() (wire.Stats, error) {
	cpu, err := c.sampleCPU()
	if err != nil {
		return wire.Stats{}, err
	}
	used, total, err := sampleMemory()
	if err != nil {
		return wire.Stats{}, err
	}
	return wire.Stats{CPUPercent: cpu, MemUsedBytes: used, MemTotalBytes: total}, nil
}

// sampleCPU computes CPU utilization as the delta of "busy" jiffies
// over total jiffies between this call and the previous one, per the
// conventional /proc/stat accounting (man proc(5)).
func (c *Collector) sampleCPU() (float64, error) {
	idle, total, err := readCPUJiffies()
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	prevIdle, prevTot := c.prevIdle, c.prevTot
	c.prevIdle, c.prevTot = idle, total
	c.mu.Unlock()

	deltaTotal := total - prevTot
	deltaIdle := idle - prevIdle
	if prevTot == 0 || deltaTotal == 0 {
		return 0, nil
	}
	busy := float64(deltaTotal-deltaIdle) / float64(deltaTotal)
	return busy * 100, nil
}

func readCPUJiffies() (idle, total uint64, err error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "cpu" {
			continue
		}
		var values []uint64
		for _, f := range fields[1:] {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				continue
			}
			values = append(values, v)
			total += v
		}
		if len(values) >= 4 {
			idle = values[3] // idle is always the 4th field
			if len(values) >= 5 {
				idle += values[4] // iowait counts as idle too
			}
		}
		return idle, total, nil
	}
	return 0, 0, fmt.Errorf("no cpu line in /proc/stat")
}

func sampleMemory() (used, total uint64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			memTotal = parseMeminfoKB(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			memAvailable = parseMeminfoKB(line)
		}
	}
	if memTotal == 0 {
		return 0, 0, fmt.Errorf("MemTotal not found in /proc/meminfo")
	}
	usedKB := memTotal - memAvailable
	return usedKB * 1024, memTotal * 1024, nil
}

func parseMeminfoKB(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseUint(fields[1], 10, 64)
	return v
}
