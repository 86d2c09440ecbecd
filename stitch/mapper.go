// Package stitch runs the per-frame point mapping that feeds panorama composition. Frames are
// buffered in a bounded queue and mapped in arrival order by a single background worker, which
// hands each result to a callback.
package stitch

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/panorama/config"
	"go.viam.com/panorama/logging"
	"go.viam.com/panorama/rimage/transform"
	"go.viam.com/panorama/utils"
	"go.viam.com/panorama/utils/queue"
)

var (
	// ErrUnknownCamera is returned for a job naming a camera the mapper was not configured with.
	ErrUnknownCamera = errors.New("unknown camera")
	// ErrMapperClosed is returned by Submit after Close or Stop.
	ErrMapperClosed = errors.New("mapper is closed")
)

// Op is the transform a job applies.
type Op int

const (
	// OpPix2Center maps raw pixels to normalized camera coordinates.
	OpPix2Center Op = iota
	// OpUndistort maps raw pixels to pixels of the undistorted view (NewK).
	OpUndistort
	// OpDistort maps pixels of the undistorted view back to raw pixels.
	OpDistort
	// OpProject maps world points to raw pixels through the camera's projection matrix.
	OpProject
)

func (op Op) String() string {
	switch op {
	case OpPix2Center:
		return "pix2center"
	case OpUndistort:
		return "undistort"
	case OpDistort:
		return "distort"
	case OpProject:
		return "project"
	default:
		return "unknown"
	}
}

// FrameJob asks for the points of one frame of one camera to be mapped. OpProject reads World;
// every other op reads Points.
type FrameJob struct {
	FrameID uint64
	Camera  string
	Op      Op
	Points  []transform.Point2D
	World   []transform.Point3D
}

// FrameResult is the outcome of a FrameJob. When Reused is set the mapping failed, Points holds
// a copy of the last good mapping of the same camera and op, and Cause holds the failure.
type FrameResult struct {
	FrameID uint64
	Camera  string
	Points  []transform.Point2D
	Reused  bool
	Cause   error
	Err     error
}

// Stats counts what happened to submitted frames.
type Stats struct {
	Mapped  int
	Skipped int
	Reused  int
	Dropped int
}

type reuseKey struct {
	camera string
	op     Op
}

// Mapper maps queued frames on a background worker.
type Mapper struct {
	engine  *transform.Engine
	cameras map[string]config.CameraParameters
	policy  config.FailurePolicy
	jobs    *queue.Queue[FrameJob]
	deliver func(FrameResult)
	logger  logging.Logger

	workers *utils.StoppableWorkers
	closing chan struct{}
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	lastGood map[reuseKey][]transform.Point2D
	stats    Stats
	halted   error
}

// NewMapper starts a mapper for the cameras of cfg. deliver is called from the worker goroutine,
// once per frame that is not dropped from the queue, in submission order.
func NewMapper(cfg *config.Config, engine *transform.Engine, deliver func(FrameResult), logger logging.Logger) (*Mapper, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	m := &Mapper{
		engine:   engine,
		cameras:  cfg.Cameras,
		policy:   cfg.FailurePolicy,
		deliver:  deliver,
		logger:   logger,
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		lastGood: map[reuseKey][]transform.Point2D{},
	}
	jobs, err := queue.New(cfg.Queue.Size, cfg.Queue.Policy, m.dropped)
	if err != nil {
		return nil, err
	}
	m.jobs = jobs
	m.workers = utils.NewStoppableWorkers(m.run)
	return m, nil
}

// dropped runs under the queue lock when a full EvictOldest queue discards a frame.
func (m *Mapper) dropped(job FrameJob) {
	m.mu.Lock()
	m.stats.Dropped++
	m.mu.Unlock()
	m.logger.Debugw("frame evicted from queue", "frame", job.FrameID, "camera", job.Camera)
}

// Submit queues a job. It fails once the mapper has been halted or closed, and when the queue is
// full under the reject_new policy.
func (m *Mapper) Submit(job FrameJob) error {
	if err := m.Err(); err != nil {
		return errors.Wrap(err, "mapping halted")
	}
	if err := m.jobs.PushBack(job); err != nil {
		if errors.Is(err, queue.ErrQueueClosed) {
			return ErrMapperClosed
		}
		return err
	}
	return nil
}

// Err returns the error that halted the mapper under the halt policy, if any.
func (m *Mapper) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Stats returns a snapshot of the frame counters.
func (m *Mapper) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close stops accepting jobs, maps everything already queued and waits for the worker to exit.
func (m *Mapper) Close() {
	m.once.Do(func() {
		m.jobs.Close()
		close(m.closing)
	})
	select {
	case <-m.done:
	case <-m.workers.Context().Done():
	}
	m.workers.Stop()
}

// Stop abandons queued jobs and waits for the worker to exit.
func (m *Mapper) Stop() {
	m.jobs.Close()
	m.workers.Stop()
}

func (m *Mapper) run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.jobs.Ready():
			if !m.drain(ctx) {
				return
			}
		case <-m.closing:
			m.drain(ctx)
			return
		}
	}
}

// drain maps queued jobs until the queue is empty. It returns false when the worker should exit.
func (m *Mapper) drain(ctx context.Context) bool {
	for ctx.Err() == nil {
		job, ok := m.jobs.TryPopFront()
		if !ok {
			return true
		}
		if !m.process(job) {
			return false
		}
	}
	return false
}

// process maps one job and delivers its result. It returns false when the mapper halted.
func (m *Mapper) process(job FrameJob) bool {
	points, err := m.mapJob(job)
	result := FrameResult{FrameID: job.FrameID, Camera: job.Camera, Points: points}
	if err == nil {
		m.mu.Lock()
		if m.policy == config.FailureReuse {
			// the delivered slice belongs to the consumer
			m.lastGood[reuseKey{job.Camera, job.Op}] = append([]transform.Point2D(nil), points...)
		}
		m.stats.Mapped++
		m.mu.Unlock()
		m.deliver(result)
		return true
	}

	logger := m.logger.Sublogger(job.Camera).With("frame", job.FrameID, "op", job.Op.String())
	switch m.policy {
	case config.FailureHalt:
		m.mu.Lock()
		m.halted = errors.Wrapf(err, "frame %d", job.FrameID)
		m.mu.Unlock()
		m.jobs.Close()
		logger.Errorw("halting on failed frame", "error", err)
		result.Err = err
		m.deliver(result)
		return false
	case config.FailureReuse:
		m.mu.Lock()
		last, ok := m.lastGood[reuseKey{job.Camera, job.Op}]
		if ok {
			m.stats.Reused++
		} else {
			m.stats.Skipped++
		}
		m.mu.Unlock()
		if ok {
			logger.Warnw("reusing previous mapping", "error", err)
			result.Points = append([]transform.Point2D(nil), last...)
			result.Reused = true
			result.Cause = err
		} else {
			logger.Warnw("skipping frame with no previous mapping", "error", err)
			result.Err = err
		}
	case config.FailureSkip:
		fallthrough
	default:
		m.mu.Lock()
		m.stats.Skipped++
		m.mu.Unlock()
		logger.Warnw("skipping frame", "error", err)
		result.Err = err
	}
	m.deliver(result)
	return true
}

func (m *Mapper) mapJob(job FrameJob) ([]transform.Point2D, error) {
	cam, ok := m.cameras[job.Camera]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCamera, "%q", job.Camera)
	}
	k, err := cam.Intrinsics()
	if err != nil {
		return nil, err
	}
	switch job.Op {
	case OpPix2Center:
		return m.engine.Pix2Center(job.Points, cam.Type, cam.Distortion, k)
	case OpUndistort, OpDistort:
		newK, err := cam.NewIntrinsics()
		if err != nil {
			return nil, err
		}
		if job.Op == OpUndistort {
			return m.engine.Pix2UndistortedPix(job.Points, cam.Type, newK, cam.Distortion, k)
		}
		return m.engine.UndistortedPixes2Pix(job.Points, cam.Type, k, cam.Distortion, newK)
	case OpProject:
		p, err := cam.Projection()
		if err != nil {
			return nil, err
		}
		return m.engine.World3ds2Pix(job.World, cam.Type, k, cam.Distortion, p)
	default:
		return nil, errors.Errorf("unknown op %d", int(job.Op))
	}
}
