// Package render turns sonar samples into rasters, keeping the LUT of the
// current sonar configuration across frames and rebuilding it only when the
// configuration or window size changes.
package render

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidewise/drivers-sonar-base/internal/monitoring"
	"github.com/tidewise/drivers-sonar-base/internal/sonar"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/lut"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/raster"
)

// Store persists built LUTs so that a restart can skip the geometry build.
// Implemented by lutstore.Store.
type Store interface {
	// Load returns a LUT matching cfg and windowSize, or nil when none is
	// stored.
	Load(cfg sonar.Config, windowSize int) (*lut.LUT, error)
	Save(l *lut.LUT) (string, error)
}

// Options configures a Renderer.
type Options struct {
	WindowSize int
	Gain       float64 // intensity multiplier; 0 means 255
	Store      Store   // optional
}

// Renderer paints samples into rasters.
//
// Render may be called from several goroutines. The current LUT is
// published through an atomic pointer: a configuration change builds a new
// LUT and swaps it in, renders already in flight keep the one they loaded.
type Renderer struct {
	windowSize int
	gain       float64
	store      Store

	current  atomic.Pointer[lut.LUT]
	buildMu  sync.Mutex
	rebuilds atomic.Int64
	frames   atomic.Int64
}

// New creates a Renderer. It does not build anything until the first
// sample arrives.
func New(opts Options) (*Renderer, error) {
	if opts.WindowSize < 1 {
		return nil, fmt.Errorf("%w: window size must be at least 1, got %d", sonar.ErrInvalidConfiguration, opts.WindowSize)
	}
	gain := opts.Gain
	if gain == 0 {
		gain = 255
	}
	return &Renderer{
		windowSize: opts.WindowSize,
		gain:       gain,
		store:      opts.Store,
	}, nil
}

// WindowSize returns the configured window size.
func (r *Renderer) WindowSize() int { return r.windowSize }

// LUT returns the currently published LUT, or nil before the first frame.
func (r *Renderer) LUT() *lut.LUT { return r.current.Load() }

// Rebuilds returns how many LUTs were built or loaded since creation.
func (r *Renderer) Rebuilds() int64 { return r.rebuilds.Load() }

// Frames returns how many frames were rendered.
func (r *Renderer) Frames() int64 { return r.frames.Load() }

// Prepare returns a LUT valid for cfg, building and publishing one if the
// current LUT does not match. On failure the previous LUT stays published.
func (r *Renderer) Prepare(cfg sonar.Config) (*lut.LUT, error) {
	if cur := r.current.Load(); cur != nil && cur.Matches(cfg, r.windowSize) {
		return cur, nil
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	// Another goroutine may have published a matching LUT while we waited.
	if cur := r.current.Load(); cur != nil && cur.Matches(cfg, r.windowSize) {
		return cur, nil
	}

	next, err := r.loadOrBuild(cfg)
	if err != nil {
		return nil, err
	}
	r.current.Store(next)
	r.rebuilds.Add(1)
	return next, nil
}

func (r *Renderer) loadOrBuild(cfg sonar.Config) (*lut.LUT, error) {
	if r.store != nil {
		stored, err := r.store.Load(cfg, r.windowSize)
		if err != nil {
			monitoring.Logf("[Renderer] LUT store lookup failed, rebuilding: %v", err)
		} else if stored != nil {
			monitoring.Logf("[Renderer] Loaded LUT from store: beams=%d bins=%d raster=%dx%d",
				cfg.BeamCount, cfg.BinCount, stored.Width(), stored.Height())
			return stored, nil
		}
	}

	start := time.Now()
	built, err := lut.New(cfg, r.windowSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build LUT: %w", err)
	}
	monitoring.Logf("[Renderer] Built LUT: beams=%d bins=%d raster=%dx%d assignments=%d took=%s",
		cfg.BeamCount, cfg.BinCount, built.Width(), built.Height(), built.PixelCount(), time.Since(start))

	if r.store != nil {
		if id, err := r.store.Save(built); err != nil {
			monitoring.Logf("[Renderer] Failed to persist LUT: %v", err)
		} else {
			monitoring.Debugf("[Renderer] Persisted LUT %s", id)
		}
	}
	return built, nil
}

// Render validates s, makes sure a matching LUT is published and paints
// the sample into a fresh raster.
func (r *Renderer) Render(s *sonar.Sample) (*raster.Image, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	l, err := r.Prepare(s.Config())
	if err != nil {
		return nil, err
	}
	img := raster.New(l.Width(), l.Height())
	if err := l.PaintFrame(img, s.Bins, r.gain); err != nil {
		return nil, err
	}
	r.frames.Add(1)
	monitoring.Debugf("[Renderer] Rendered frame %d: lit=%d", r.frames.Load(), img.Lit())
	return img, nil
}
