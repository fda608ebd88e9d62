package viewcast

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// statsReportSize is the wire size of a receiver feedback report:
// four big-endian uint64 counters.
const statsReportSize = 32

// PipelineStats aggregates per-session counters. Each counter has a
// single writer stage; readers take snapshots.
type PipelineStats struct {
	FramesCaptured  atomic.Uint64
	FramesCropped   atomic.Uint64
	FramesEncoded   atomic.Uint64
	FramesDropped   atomic.Uint64
	PacketsSent     atomic.Uint64
	PacketsReceived atomic.Uint64
	PacketsLate     atomic.Uint64
	UnitsDecoded    atomic.Uint64
	DecodeErrors    atomic.Uint64
	StageRestarts   atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	FramesCaptured  uint64
	FramesCropped   uint64
	FramesEncoded   uint64
	FramesDropped   uint64
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsLate     uint64
	UnitsDecoded    uint64
	DecodeErrors    uint64
	StageRestarts   uint64
}

// Snapshot copies the current counter values.
func (s *PipelineStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesCaptured:  s.FramesCaptured.Load(),
		FramesCropped:   s.FramesCropped.Load(),
		FramesEncoded:   s.FramesEncoded.Load(),
		FramesDropped:   s.FramesDropped.Load(),
		PacketsSent:     s.PacketsSent.Load(),
		PacketsReceived: s.PacketsReceived.Load(),
		PacketsLate:     s.PacketsLate.Load(),
		UnitsDecoded:    s.UnitsDecoded.Load(),
		DecodeErrors:    s.DecodeErrors.Load(),
		StageRestarts:   s.StageRestarts.Load(),
	}
}

// Reset zeroes every counter. Called at session start.
func (s *PipelineStats) Reset() {
	s.FramesCaptured.Store(0)
	s.FramesCropped.Store(0)
	s.FramesEncoded.Store(0)
	s.FramesDropped.Store(0)
	s.PacketsSent.Store(0)
	s.PacketsReceived.Store(0)
	s.PacketsLate.Store(0)
	s.UnitsDecoded.Store(0)
	s.DecodeErrors.Store(0)
	s.StageRestarts.Store(0)
}

// EncodeReport serializes the receive-side counters for the feedback
// channel back to the sender.
func (s *PipelineStats) EncodeReport() []byte {
	buf := make([]byte, statsReportSize)
	binary.BigEndian.PutUint64(buf[0:8], s.PacketsReceived.Load())
	binary.BigEndian.PutUint64(buf[8:16], s.PacketsLate.Load())
	binary.BigEndian.PutUint64(buf[16:24], s.UnitsDecoded.Load())
	binary.BigEndian.PutUint64(buf[24:32], s.DecodeErrors.Load())
	return buf
}

// ParseReport decodes a feedback report into a snapshot carrying the
// receive-side counters.
func ParseReport(data []byte) (StatsSnapshot, error) {
	if len(data) != statsReportSize {
		return StatsSnapshot{}, fmt.Errorf("stats report is %d bytes, want %d", len(data), statsReportSize)
	}
	return StatsSnapshot{
		PacketsReceived: binary.BigEndian.Uint64(data[0:8]),
		PacketsLate:     binary.BigEndian.Uint64(data[8:16]),
		UnitsDecoded:    binary.BigEndian.Uint64(data[16:24]),
		DecodeErrors:    binary.BigEndian.Uint64(data[24:32]),
	}, nil
}

// Report runs until ctx ends, emitting a telemetry line every
// interval.
func (s *PipelineStats) Report(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.Snapshot()
			logrus.WithFields(logrus.Fields{
				"function":        "PipelineStats.Report",
				"frames_captured":  snap.FramesCaptured,
				"frames_cropped":   snap.FramesCropped,
				"frames_encoded":   snap.FramesEncoded,
				"frames_dropped":   snap.FramesDropped,
				"packets_sent":     snap.PacketsSent,
				"packets_received": snap.PacketsReceived,
				"packets_late":     snap.PacketsLate,
				"units_decoded":    snap.UnitsDecoded,
				"decode_errors":    snap.DecodeErrors,
				"stage_restarts":   snap.StageRestarts,
			}).Info("Pipeline telemetry")
		}
	}
}
