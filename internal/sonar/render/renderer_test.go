package render

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewise/drivers-sonar-base/internal/sonar"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/lut"
)

func newSample(beamWidthDeg float64) *sonar.Sample {
	s := &sonar.Sample{
		Time:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		BeamWidth:    sonar.FromDeg(beamWidthDeg),
		SpeedOfSound: 1,
		BinCount:     100,
		BeamCount:    3,
	}
	s.SetBinDuration(time.Second)
	s.SetRegularBeamBearings(sonar.FromDeg(-10), sonar.FromDeg(10))
	s.Bins = make([]float32, s.BeamCount*s.BinCount)
	s.Bins[1*s.BinCount+50] = 1
	return s
}

// fakeStore records calls and serves LUTs from memory.
type fakeStore struct {
	mu      sync.Mutex
	stored  []*lut.LUT
	loads   int
	saves   int
	loadErr error
	saveErr error
}

func (f *fakeStore) Load(cfg sonar.Config, windowSize int) (*lut.LUT, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	for _, l := range f.stored {
		if l.Matches(cfg, windowSize) {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Save(l *lut.LUT) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.stored = append(f.stored, l)
	return "fake-id", nil
}

func TestNew(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, sonar.ErrInvalidConfiguration)

	r, err := New(Options{WindowSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 500, r.WindowSize())
	assert.Nil(t, r.LUT())
	assert.Zero(t, r.Rebuilds())
	assert.Zero(t, r.Frames())
}

func TestRender_ReusesLUTUntilConfigChanges(t *testing.T) {
	r, err := New(Options{WindowSize: 500})
	require.NoError(t, err)

	img, err := r.Render(newSample(10))
	require.NoError(t, err)
	assert.Equal(t, 87, img.Width())
	assert.Equal(t, 500, img.Height())
	assert.Equal(t, uint8(255), img.Level(43, 250))
	first := r.LUT()
	require.NotNil(t, first)

	for i := 0; i < 5; i++ {
		_, err := r.Render(newSample(10))
		require.NoError(t, err)
	}
	assert.Same(t, first, r.LUT())
	assert.Equal(t, int64(1), r.Rebuilds())
	assert.Equal(t, int64(6), r.Frames())

	_, err = r.Render(newSample(12))
	require.NoError(t, err)
	assert.NotSame(t, first, r.LUT())
	assert.Equal(t, int64(2), r.Rebuilds())
}

func TestRender_Gain(t *testing.T) {
	r, err := New(Options{WindowSize: 500, Gain: 100})
	require.NoError(t, err)
	img, err := r.Render(newSample(10))
	require.NoError(t, err)
	assert.Equal(t, uint8(100), img.Level(43, 250))
}

func TestRender_InvalidSampleKeepsLUT(t *testing.T) {
	r, err := New(Options{WindowSize: 500})
	require.NoError(t, err)
	_, err = r.Render(newSample(10))
	require.NoError(t, err)
	published := r.LUT()

	short := newSample(10)
	short.Bins = short.Bins[:10]
	_, err = r.Render(short)
	assert.ErrorIs(t, err, sonar.ErrInvalidConfiguration)

	degenerate := newSample(10)
	degenerate.SpeedOfSound = 0
	_, err = r.Render(degenerate)
	assert.ErrorIs(t, err, sonar.ErrInvalidConfiguration)

	assert.Same(t, published, r.LUT())
	assert.Equal(t, int64(1), r.Rebuilds())
	assert.Equal(t, int64(1), r.Frames())
}

func TestPrepare_DegenerateRasterKeepsLUT(t *testing.T) {
	r, err := New(Options{WindowSize: 500})
	require.NoError(t, err)
	s := newSample(10)
	_, err = r.Prepare(s.Config())
	require.NoError(t, err)
	published := r.LUT()

	// -5, 0, 5 with 10 degree beams spans no width at all.
	cfg := s.Config()
	cfg.Bearings = []sonar.Angle{sonar.FromDeg(-5), sonar.FromDeg(0), sonar.FromDeg(5)}
	_, err = r.Prepare(cfg)
	assert.ErrorIs(t, err, sonar.ErrInvalidConfiguration)
	assert.Same(t, published, r.LUT())
}

func TestPrepare_Store(t *testing.T) {
	t.Run("miss builds and saves", func(t *testing.T) {
		store := &fakeStore{}
		r, err := New(Options{WindowSize: 500, Store: store})
		require.NoError(t, err)

		_, err = r.Render(newSample(10))
		require.NoError(t, err)
		assert.Equal(t, 1, store.loads)
		assert.Equal(t, 1, store.saves)

		_, err = r.Render(newSample(10))
		require.NoError(t, err)
		assert.Equal(t, 1, store.loads, "a matching published LUT skips the store")
	})

	t.Run("hit skips the build", func(t *testing.T) {
		cached, err := lut.New(newSample(10).Config(), 500)
		require.NoError(t, err)
		store := &fakeStore{stored: []*lut.LUT{cached}}
		r, err := New(Options{WindowSize: 500, Store: store})
		require.NoError(t, err)

		_, err = r.Render(newSample(10))
		require.NoError(t, err)
		assert.Same(t, cached, r.LUT())
		assert.Zero(t, store.saves)
		assert.Equal(t, int64(1), r.Rebuilds())
	})

	t.Run("store errors fall back to building", func(t *testing.T) {
		store := &fakeStore{loadErr: errors.New("disk gone"), saveErr: errors.New("disk gone")}
		r, err := New(Options{WindowSize: 500, Store: store})
		require.NoError(t, err)

		img, err := r.Render(newSample(10))
		require.NoError(t, err)
		assert.Equal(t, uint8(255), img.Level(43, 250))
		assert.Equal(t, 1, store.saves)
	})
}

func TestRender_Concurrent(t *testing.T) {
	r, err := New(Options{WindowSize: 200})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers*10)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				// Two configurations alternate so swaps race with renders.
				bw := 10.0
				if (w+i)%2 == 0 {
					bw = 12
				}
				s := newSample(bw)
				img, err := r.Render(s)
				if err != nil {
					errs <- err
					continue
				}
				l, _ := lut.New(s.Config(), 200)
				if img.Width() != l.Width() || img.Height() != l.Height() {
					errs <- errors.New("raster does not match its sample geometry")
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, int64(workers*10), r.Frames())
	assert.GreaterOrEqual(t, r.Rebuilds(), int64(2))
}
