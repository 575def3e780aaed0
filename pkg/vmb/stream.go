package vmb

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/EtchedChampion/drd-VmbPy/internal/log"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// FrameHandler processes one delivered frame. It runs on the delivery
// goroutine of the capture session, never on the caller of StartStreaming.
// The frame belongs to the handler until it returns or requeues it with
// QueueFrame; frames are not requeued automatically.
type FrameHandler func(cam *Camera, stream *Stream, frame *Frame)

// DefaultBufferCount is a sensible frame buffer pool size for a
// streaming session.
const DefaultBufferCount = 5

// StreamOptions tunes a streaming session.
type StreamOptions struct {
	// BufferCount is the number of frame buffers of the session. It
	// must be positive; DefaultBufferCount works for most cameras.
	BufferCount    int
	AllocationMode AllocationMode
}

// DefaultStreamOptions returns streaming options with the default
// buffer pool size.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{BufferCount: DefaultBufferCount}
}

func (o StreamOptions) validate() error {
	if o.BufferCount <= 0 {
		return fmt.Errorf("buffer count %d must be positive: %w", o.BufferCount, ErrNotValid)
	}
	return nil
}

// Stream is one capture channel of a camera. It is a feature container of
// its own: transport layer stream features live here.
type Stream struct {
	*PersistableFeatureContainer
	cam    *Camera
	index  int
	logger log.Logger

	handle vmbc.Handle

	mu      sync.Mutex
	session *captureSession
}

func newStream(cam *Camera, index int) *Stream {
	logger := cam.logger.WithValues(log.Kv{"stream": index})
	return &Stream{
		PersistableFeatureContainer: newPersistableFeatureContainer(cam.api, logger),
		cam:                         cam,
		index:                       index,
		logger:                      logger,
	}
}

func (s *Stream) attachHandle(handle vmbc.Handle) error {
	s.handle = handle
	return s.attach(handle)
}

// Index returns the position of the stream on its camera.
func (s *Stream) Index() int { return s.index }

// Camera returns the owning camera.
func (s *Stream) Camera() *Camera { return s.cam }

// captureSession tracks one acquisition: its buffers, how far the capture
// chain got, and the delivery goroutine for streaming sessions.
type captureSession struct {
	id      string
	single  bool
	handler FrameHandler

	frames []*Frame
	byData map[*vmbc.Frame]*Frame

	// Capture chain progress, unwound in reverse on teardown.
	announced []*Frame
	capturing bool
	acquiring bool

	active     atomic.Bool
	deliveries chan *vmbc.Frame
	quit       chan struct{}
	wg         sync.WaitGroup
}

func newCaptureSession(api vmbc.API, logger log.Logger, payload, count int, mode AllocationMode, handler FrameHandler) *captureSession {
	sess := &captureSession{
		id:         ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		single:     handler == nil,
		handler:    handler,
		byData:     map[*vmbc.Frame]*Frame{},
		deliveries: make(chan *vmbc.Frame, count),
		quit:       make(chan struct{}),
	}
	for i := 0; i < count; i++ {
		fr := newFrame(api, logger, payload, mode)
		sess.frames = append(sess.frames, fr)
		sess.byData[&fr.data] = fr
	}
	sess.active.Store(true)
	return sess
}

// complete is the native frame callback. It only hands the frame over to
// the delivery goroutine so the driver thread is never blocked.
func (sess *captureSession) complete(_ vmbc.Handle, data *vmbc.Frame) {
	if !sess.active.Load() {
		return
	}
	select {
	case sess.deliveries <- data:
	default:
		// The channel capacity matches the buffer pool, this only
		// happens after teardown started.
	}
}

// openCapture walks the capture chain forward: announce buffers, start the
// capture engine, queue buffers, start acquisition. Any failure unwinds
// the completed steps so the stream ends up idle again.
func (s *Stream) openCapture(sess *captureSession) (err error) {
	defer func() {
		if err != nil {
			s.closeCapture(sess)
		}
	}()

	api := s.cam.api

	for _, fr := range sess.frames {
		if aErr := api.FrameAnnounce(s.handle, &fr.data); aErr != nil {
			return fmt.Errorf("announcing frame: %w", wrapStatus(aErr))
		}
		sess.announced = append(sess.announced, fr)
	}

	if cErr := api.CaptureStart(s.handle); cErr != nil {
		return fmt.Errorf("starting capture engine: %w", wrapStatus(cErr))
	}
	sess.capturing = true

	var cb vmbc.FrameCallback
	if !sess.single {
		cb = sess.complete
	}
	for _, fr := range sess.frames {
		if qErr := api.CaptureFrameQueue(s.handle, &fr.data, cb); qErr != nil {
			return fmt.Errorf("queueing frame: %w", wrapStatus(qErr))
		}
	}

	start, cmdErr := AsCommand(s.cam.FeatureByName("AcquisitionStart"))
	if cmdErr != nil {
		return fmt.Errorf("resolving AcquisitionStart: %w", cmdErr)
	}
	if runErr := start.Run(); runErr != nil {
		return fmt.Errorf("starting acquisition: %w", runErr)
	}
	sess.acquiring = true

	s.logger.Debugf("Capture %s opened with %d buffers", sess.id, len(sess.frames))
	return nil
}

// closeCapture unwinds the capture chain in reverse order. Teardown keeps
// going past individual failures, they are logged.
func (s *Stream) closeCapture(sess *captureSession) {
	api := s.cam.api

	if sess.acquiring {
		sess.acquiring = false
		if stop, err := AsCommand(s.cam.FeatureByName("AcquisitionStop")); err == nil {
			if err := stop.Run(); err != nil {
				s.logger.Warningf("Stopping acquisition: %v", err)
			}
		}
	}

	if sess.capturing {
		sess.capturing = false
		if err := api.CaptureEnd(s.handle); err != nil {
			s.logger.Warningf("Ending capture engine: %v", err)
		}
	}

	if err := api.CaptureQueueFlush(s.handle); err != nil {
		s.logger.Warningf("Flushing capture queue: %v", err)
	}

	for _, fr := range sess.announced {
		if err := api.FrameRevoke(s.handle, &fr.data); err != nil {
			s.logger.Warningf("Revoking frame: %v", err)
		}
	}
	sess.announced = nil

	s.logger.Debugf("Capture %s closed", sess.id)
}

// StartStreaming starts asynchronous frame delivery to handler. Frames are
// delivered one at a time per stream; the handler must requeue each frame
// with QueueFrame to keep the acquisition supplied with buffers.
func (s *Stream) StartStreaming(handler FrameHandler, opts StreamOptions) error {
	if handler == nil {
		return fmt.Errorf("frame handler is required: %w", ErrNotValid)
	}
	if err := opts.validate(); err != nil {
		return err
	}
	if err := s.alive(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return fmt.Errorf("stream %d is already streaming: %w", s.index, ErrCamera)
	}

	payload, err := s.cam.api.PayloadSizeGet(s.handle)
	if err != nil {
		return wrapStatus(err)
	}

	sess := newCaptureSession(s.cam.api, s.logger, payload, opts.BufferCount, opts.AllocationMode, handler)
	if err := s.openCapture(sess); err != nil {
		return err
	}

	sess.wg.Add(1)
	go s.deliver(sess)

	s.session = sess
	s.logger.Infof("Streaming started (capture %s)", sess.id)
	return nil
}

// StopStreaming stops frame delivery and releases the buffers of the
// session. Stopping an idle stream is a no-op; blocked synchronous waits
// of the stream fail with ErrCanceled.
func (s *Stream) StopStreaming() error {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess == nil {
		return nil
	}
	sess.active.Store(false)

	if sess.single {
		// Wake the blocked wait, the single frame capture flow owns the
		// rest of the teardown.
		if err := s.cam.api.CaptureQueueFlush(s.handle); err != nil {
			s.logger.Warningf("Flushing capture queue: %v", err)
		}
		return nil
	}

	s.closeCapture(sess)
	close(sess.quit)
	sess.wg.Wait()

	s.logger.Infof("Streaming stopped (capture %s)", sess.id)
	return nil
}

// IsStreaming reports whether an asynchronous streaming session is active.
func (s *Stream) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil && !s.session.single
}

// QueueFrame hands a delivered frame back to the capture queue. Only
// frames belonging to the active streaming session can be requeued.
func (s *Stream) QueueFrame(frame *Frame) error {
	if frame == nil {
		return fmt.Errorf("frame is required: %w", ErrNotValid)
	}

	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if sess == nil || sess.single {
		return fmt.Errorf("stream %d has no active streaming session: %w", s.index, ErrNotValid)
	}
	if sess.byData[&frame.data] != frame {
		return fmt.Errorf("frame does not belong to this streaming session: %w", ErrNotValid)
	}

	return wrapStatus(s.cam.api.CaptureFrameQueue(s.handle, &frame.data, sess.complete))
}

// deliver runs the frame handler for every completed frame, one at a time.
// Handler panics are contained and logged, delivery then resumes with the
// next frame.
func (s *Stream) deliver(sess *captureSession) {
	defer sess.wg.Done()

	for {
		select {
		case <-sess.quit:
			return
		case data := <-sess.deliveries:
			fr, ok := sess.byData[data]
			if !ok {
				continue
			}
			fr.inScope.Store(true)
			s.invokeHandler(sess, fr)
			fr.inScope.Store(false)
		}
	}
}

func (s *Stream) invokeHandler(sess *captureSession, fr *Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("Frame handler panicked: %v", r)
		}
	}()
	sess.handler(s.cam, s, fr)
}

// GetFrameWith captures a single frame and hands it to fn while it is
// still owned by the acquisition, so chunk data is accessible inside fn.
// The timeout must be positive. It fails with ErrTimeout when no frame
// arrives in time and ErrCanceled when the wait is aborted by
// StopStreaming.
func (s *Stream) GetFrameWith(ctx context.Context, timeout time.Duration, fn func(frame *Frame) error) error {
	if fn == nil {
		return fmt.Errorf("frame callback is required: %w", ErrNotValid)
	}
	if timeout <= 0 {
		return fmt.Errorf("capture timeout %s must be positive: %w", timeout, ErrNotValid)
	}
	if err := s.alive(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return fmt.Errorf("stream %d is busy streaming: %w", s.index, ErrCamera)
	}

	payload, err := s.cam.api.PayloadSizeGet(s.handle)
	if err != nil {
		s.mu.Unlock()
		return wrapStatus(err)
	}
	sess := newCaptureSession(s.cam.api, s.logger, payload, 1, AllocationModeAnnounceFrame, nil)
	s.session = sess
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.session == sess {
			s.session = nil
		}
		s.mu.Unlock()
	}()

	if err := s.openCapture(sess); err != nil {
		return err
	}
	defer s.closeCapture(sess)

	fr := sess.frames[0]
	if err := s.cam.api.CaptureFrameWait(ctx, s.handle, &fr.data, timeout); err != nil {
		return wrapStatus(err)
	}

	fr.inScope.Store(true)
	defer fr.inScope.Store(false)
	return fn(fr)
}

// GetFrame captures a single frame and returns a standalone copy of it.
func (s *Stream) GetFrame(ctx context.Context, timeout time.Duration) (*Frame, error) {
	var out *Frame
	err := s.GetFrameWith(ctx, timeout, func(fr *Frame) error {
		out = fr.detachedCopy()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FrameIter returns an iterator producing up to limit frames through
// repeated single frame captures. Frame ids are reassigned monotonically
// from zero. A negative limit or non-positive timeout is invalid; an
// exhausted iterator is not restartable.
func (s *Stream) FrameIter(limit int, timeout time.Duration) (*FrameIter, error) {
	if limit < 0 {
		return nil, fmt.Errorf("frame limit %d must not be negative: %w", limit, ErrNotValid)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("capture timeout %s must be positive: %w", timeout, ErrNotValid)
	}
	return &FrameIter{stream: s, remaining: limit, timeout: timeout}, nil
}

// FrameIter yields frames from repeated single frame captures.
type FrameIter struct {
	stream    *Stream
	remaining int
	timeout   time.Duration
	nextID    uint64
}

// Next returns the next frame, or ErrExhausted once the limit is reached.
func (it *FrameIter) Next(ctx context.Context) (*Frame, error) {
	if it.remaining == 0 {
		return nil, ErrExhausted
	}

	fr, err := it.stream.GetFrame(ctx, it.timeout)
	if err != nil {
		return nil, err
	}

	it.remaining--
	fr.data.FrameID = it.nextID
	fr.data.Flags |= vmbc.FrameFlagFrameID
	it.nextID++
	return fr, nil
}
