package viewcast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/viewcast/config"
	"github.com/opd-ai/viewcast/follow"
	"github.com/opd-ai/viewcast/rtp"
	"github.com/opd-ai/viewcast/sink"
	"github.com/opd-ai/viewcast/transport"
	"github.com/opd-ai/viewcast/video"
)

// keepAliveInterval paces the sender's path-liveness datagrams.
const keepAliveInterval = 2 * time.Second

// statsReportInterval paces the receiver's feedback reports.
const statsReportInterval = time.Second

// CaptureRunner is a capture stage implementation: the negotiated
// stream source or the screenshot fallback.
type CaptureRunner interface {
	Run(ctx context.Context, out chan<- *video.Frame) error
}

// SenderOptions wires a sending pipeline together.
type SenderOptions struct {
	Config *config.Config
	// Capture is the primary capture stage.
	Capture CaptureRunner
	// Fallback optionally replaces Capture after its restart budget
	// is exhausted.
	Fallback CaptureRunner
	// Tracker optionally drives the follow controller from a cursor
	// source. Nil leaves the viewport static.
	Tracker    *follow.Tracker
	Transport  transport.Transport
	RemoteAddr net.Addr
}

// Sender is the capture→crop→encode→packetize pipeline.
type Sender struct {
	cfg        *config.Config
	captureSrc CaptureRunner
	fallback   CaptureRunner
	tracker    *follow.Tracker
	controller *follow.Controller
	cropper    *video.Cropper
	encoder    *video.Encoder
	queue      *video.FrameQueue
	packetizer *rtp.Packetizer
	supervisor *Supervisor
	transport  transport.Transport
	remoteAddr net.Addr
	rawFrames  chan *video.Frame

	remoteMu sync.Mutex
	remote   StatsSnapshot
}

// NewSender builds the sending pipeline from validated configuration.
func NewSender(opts SenderOptions) (*Sender, error) {
	if opts.Config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Capture == nil {
		return nil, errors.New("capture runner cannot be nil")
	}
	if opts.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if opts.RemoteAddr == nil {
		return nil, errors.New("remote address cannot be nil")
	}
	cfg := opts.Config

	controller, err := follow.NewController(follow.Config{
		SourceWidth:  cfg.SourceWidth,
		SourceHeight: cfg.SourceHeight,
		Viewport: follow.Rect{
			X: cfg.CropX, Y: cfg.CropY,
			Width: cfg.CropWidth, Height: cfg.CropHeight,
		},
		Follow:         cfg.Follow,
		DeadzoneRadius: cfg.DeadzoneRadius,
		Smoothing:      cfg.Smoothing,
		LostAfter:      cfg.LostAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("follow controller: %w", err)
	}

	cropper, err := video.NewCropper(cfg.CropWidth, cfg.CropHeight)
	if err != nil {
		return nil, fmt.Errorf("cropper: %w", err)
	}

	encoder, err := video.NewEncoder(video.EncoderConfig{
		Width:       cfg.CropWidth,
		Height:      cfg.CropHeight,
		BitRate:     cfg.BitRate,
		FPS:         cfg.FPS,
		KeyInterval: cfg.KeyInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}

	packetizer, err := rtp.NewPacketizer(cfg.MTU, opts.Transport, opts.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("packetizer: %w", err)
	}

	supervisor, err := NewSupervisor(cfg.BackoffBase, cfg.MaxRestarts, &PipelineStats{})
	if err != nil {
		return nil, err
	}

	s := &Sender{
		cfg:        cfg,
		captureSrc: opts.Capture,
		fallback:   opts.Fallback,
		tracker:    opts.Tracker,
		controller: controller,
		cropper:    cropper,
		encoder:    encoder,
		queue:      video.NewFrameQueue(3),
		packetizer: packetizer,
		supervisor: supervisor,
		transport:  opts.Transport,
		remoteAddr: opts.RemoteAddr,
		rawFrames:  make(chan *video.Frame, 2),
	}

	opts.Transport.RegisterHandler(transport.PacketStatsReport, func(p *transport.Packet, addr net.Addr) error {
		snap, err := ParseReport(p.Data)
		if err != nil {
			return err
		}
		s.remoteMu.Lock()
		s.remote = snap
		s.remoteMu.Unlock()
		return nil
	})

	return s, nil
}

// RemoteStats returns the receive-side counters from the most recent
// feedback report, zero before the first report arrives.
func (s *Sender) RemoteStats() StatsSnapshot {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	return s.remote
}

// Controller exposes the follow controller so callers can feed cursor
// samples directly when no tracker is configured.
func (s *Sender) Controller() *follow.Controller {
	return s.controller
}

// Stats returns the sender's pipeline counters.
func (s *Sender) Stats() *PipelineStats {
	return s.supervisor.Stats()
}

// Run drives the pipeline until the context ends or the session fails
// permanently.
func (s *Sender) Run(ctx context.Context) error {
	stats := s.supervisor.Stats()
	stats.Reset()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-runCtx.Done()
		s.queue.Close()
	}()
	go s.runKeepAlive(runCtx)
	defer s.controller.Stop()

	stages := []Stage{
		{
			Name: "capture",
			Run: func(ctx context.Context) error {
				return s.captureSrc.Run(ctx, s.rawFrames)
			},
		},
		{Name: "process", Run: s.runProcess},
		{Name: "encode", Run: s.runEncode},
	}
	if s.fallback != nil {
		stages[0].Fallback = func(ctx context.Context) error {
			return s.fallback.Run(ctx, s.rawFrames)
		}
	}
	if s.tracker != nil {
		stages = append(stages, Stage{
			Name: "tracker",
			Run: func(ctx context.Context) error {
				err := s.tracker.Run(ctx)
				if errors.Is(err, follow.ErrNoCursorSource) {
					// No cursor capability at all: keep the static
					// viewport rather than failing the session.
					logrus.WithFields(logrus.Fields{
						"function": "Sender.Run",
					}).Warn("No cursor source, viewport stays static")
					<-ctx.Done()
					return ctx.Err()
				}
				return err
			},
		})
	}

	return s.supervisor.Run(runCtx, stages...)
}

// runKeepAlive keeps the datagram path warm so feedback reports can
// travel back even while no media flows.
func (s *Sender) runKeepAlive(ctx context.Context) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.transport.Send(&transport.Packet{
				PacketType: transport.PacketKeepAlive,
				Data:       []byte{0},
			}, s.remoteAddr)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Sender.runKeepAlive",
					"error":    err.Error(),
				}).Debug("Keep-alive send failed")
			}
		}
	}
}

// runProcess crops and converts captured frames into the encode queue.
func (s *Sender) runProcess(ctx context.Context) error {
	stats := s.supervisor.Stats()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-s.rawFrames:
			stats.FramesCaptured.Add(1)

			vp := s.controller.Viewport()
			cropped, err := s.cropper.Crop(frame, vp.X, vp.Y)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Sender.runProcess",
					"error":    err.Error(),
				}).Warn("Dropping frame the cropper rejected")
				continue
			}
			converted, err := video.RGBAToI420(cropped)
			if err != nil {
				return err
			}
			stats.FramesCropped.Add(1)

			if dropped := s.queue.Push(converted); dropped {
				stats.FramesDropped.Add(1)
			}
		}
	}
}

// runEncode drains the queue, encodes and packetizes. Individual send
// failures are treated as network loss; socket failures restart the
// stage.
func (s *Sender) runEncode(ctx context.Context) error {
	stats := s.supervisor.Stats()
	for {
		frame := s.queue.Pop()
		if frame == nil {
			return ctx.Err()
		}

		unit, err := s.encoder.Encode(frame)
		if err != nil {
			return err
		}
		stats.FramesEncoded.Add(1)

		if err := s.packetizer.PacketizeAndSend(unit); err != nil {
			if errors.Is(err, transport.ErrSocketFailure) {
				return err
			}
			// Anything else is one unit lost on a lossy path. The
			// receiver recovers at the next key unit; help it along.
			s.encoder.ForceKeyUnit()
			logrus.WithFields(logrus.Fields{
				"function": "Sender.runEncode",
				"error":    err.Error(),
			}).Debug("Video unit dropped on send")
		}
		stats.PacketsSent.Store(s.packetizer.PacketsSent())
	}
}

// ReceiverOptions wires a receiving pipeline together.
type ReceiverOptions struct {
	Config    *config.Config
	Transport transport.Transport
	Sink      sink.Sink
	Contract  sink.Contract
	// Clock is injectable for deterministic jitter timing in tests.
	Clock rtp.TimeProvider
}

// Receiver is the depacketize→decode→sink pipeline.
type Receiver struct {
	cfg          *config.Config
	depacketizer *rtp.Depacketizer
	output       *sink.Output
	supervisor   *Supervisor
	transport    transport.Transport

	peerMu   sync.Mutex
	peerAddr net.Addr
}

// NewReceiver builds the receiving pipeline and registers its packet
// handler on the transport.
func NewReceiver(opts ReceiverOptions) (*Receiver, error) {
	if opts.Config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	output, err := sink.NewOutput(opts.Sink, opts.Contract)
	if err != nil {
		return nil, err
	}

	supervisor, err := NewSupervisor(opts.Config.BackoffBase, opts.Config.MaxRestarts, &PipelineStats{})
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		cfg:          opts.Config,
		depacketizer: rtp.NewDepacketizer(opts.Config.JitterLatency, opts.Clock),
		output:       output,
		supervisor:   supervisor,
		transport:    opts.Transport,
	}

	opts.Transport.RegisterHandler(transport.PacketVideoData, func(p *transport.Packet, addr net.Addr) error {
		r.setPeer(addr)
		r.supervisor.Stats().PacketsReceived.Add(1)
		return r.depacketizer.ProcessPacket(p.Data)
	})
	opts.Transport.RegisterHandler(transport.PacketKeepAlive, func(p *transport.Packet, addr net.Addr) error {
		r.setPeer(addr)
		return nil
	})

	return r, nil
}

func (r *Receiver) setPeer(addr net.Addr) {
	r.peerMu.Lock()
	r.peerAddr = addr
	r.peerMu.Unlock()
}

func (r *Receiver) peer() net.Addr {
	r.peerMu.Lock()
	defer r.peerMu.Unlock()
	return r.peerAddr
}

// Stats returns the receiver's pipeline counters.
func (r *Receiver) Stats() *PipelineStats {
	return r.supervisor.Stats()
}

// Run drains the jitter path into the sink until the context ends.
func (r *Receiver) Run(ctx context.Context) error {
	r.supervisor.Stats().Reset()
	defer r.output.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.runFeedback(runCtx)

	return r.supervisor.Run(runCtx, Stage{Name: "output", Run: r.runOutput})
}

// runFeedback reports the receive-side counters back to the sender so
// its telemetry covers the far end of the path.
func (r *Receiver) runFeedback(ctx context.Context) {
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			peer := r.peer()
			if peer == nil {
				continue
			}
			err := r.transport.Send(&transport.Packet{
				PacketType: transport.PacketStatsReport,
				Data:       r.supervisor.Stats().EncodeReport(),
			}, peer)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Receiver.runFeedback",
					"error":    err.Error(),
				}).Debug("Stats report send failed")
			}
		}
	}
}

func (r *Receiver) runOutput(ctx context.Context) error {
	stats := r.supervisor.Stats()

	// Drain at twice the jitter window so release timing stays tight.
	interval := r.cfg.JitterLatency / 2
	if interval < 5*time.Millisecond {
		interval = 5 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, unit := range r.depacketizer.Drain() {
				if err := r.output.Consume(unit); err != nil {
					return err
				}
			}
			stats.UnitsDecoded.Store(r.output.FramesWritten())
			stats.DecodeErrors.Store(r.output.CorruptUnits() + r.depacketizer.DiscardedUnits())
			stats.PacketsLate.Store(r.depacketizer.LatePackets())
		}
	}
}
