package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide session traffic counter.
var Stats = &stats{}

type stats struct {
	UpdatesSent atomic.Int64 // document updates written to the peer
	UpdatesRecv atomic.Int64 // document updates applied from the peer
	ControlMsgs atomic.Int64 // control-arbitration messages in either direction
	BytesSent   atomic.Int64 // cumulative bytes written to the link
	BytesRecv   atomic.Int64 // cumulative bytes read from the link
}

func (s *stats) AddUpdateSent() { s.UpdatesSent.Add(1) }
func (s *stats) AddUpdateRecv() { s.UpdatesRecv.Add(1) }
func (s *stats) AddControl()    { s.ControlMsgs.Add(1) }
func (s *stats) AddSent(n int)  { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)  { s.BytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs session traffic every
// 10 seconds while anything moved. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevUp, prevDown int64
		for {
			select {
			case <-ticker.C:
				up := Stats.UpdatesSent.Load()
				down := Stats.UpdatesRecv.Load()
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()

				if up != prevUp || down != prevDown || sent != prevSent || recv != prevRecv {
					pterm.DefaultLogger.Info(fmt.Sprintf(
						"Sync: %d↑ %d↓ updates | %s out | %s in | %d control",
						up-prevUp, down-prevDown,
						formatBytes(float64(sent-prevSent)),
						formatBytes(float64(recv-prevRecv)),
						Stats.ControlMsgs.Load(),
					))
				}

				prevSent = sent
				prevRecv = recv
				prevUp = up
				prevDown = down

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}
