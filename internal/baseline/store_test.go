package baseline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestAverageRequiresMinHistory(t *testing.T) {
	s := NewStore(Options{Window: 10, MinHistory: 3}, nil, zerolog.Nop())

	s.Append("BTCUSDT", 10, t0)
	s.Append("BTCUSDT", 20, t0)
	_, ok := s.Average("BTCUSDT")
	assert.False(t, ok, "two values are below min history")

	s.Append("BTCUSDT", 30, t0)
	avg, ok := s.Average("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 20.0, avg)

	_, ok = s.Average("UNKNOWN")
	assert.False(t, ok)
}

func TestAppendEvictsOldest(t *testing.T) {
	s := NewStore(Options{Window: 10, MinHistory: 3}, nil, zerolog.Nop())
	for i := 1; i <= 11; i++ {
		s.Append("ETHUSDT", float64(i), t0)
	}

	hist := s.History("ETHUSDT")
	require.Len(t, hist, 10)
	assert.Equal(t, 2.0, hist[0])
	assert.Equal(t, 11.0, hist[9])

	avg, ok := s.Average("ETHUSDT")
	require.True(t, ok)
	assert.InDelta(t, 6.5, avg, 1e-9)
}

func TestAppendDropsNonFinite(t *testing.T) {
	s := NewStore(Options{}, nil, zerolog.Nop())
	s.Append("X", 1, t0)
	s.Append("X", math.NaN(), t0)
	s.Append("X", math.Inf(1), t0)
	assert.Equal(t, []float64{1}, s.History("X"))
}

func TestPruneByAge(t *testing.T) {
	s := NewStore(Options{Window: 5, MinHistory: 1, MaxAge: 24 * time.Hour}, nil, zerolog.Nop())
	s.Append("OLD", 1, t0.Add(-25*time.Hour))
	s.Append("EDGE", 1, t0.Add(-24*time.Hour))
	s.Append("NEW", 1, t0)

	removed := s.Prune(t0)
	assert.Equal(t, []string{"OLD"}, removed)
	assert.Equal(t, []string{"EDGE", "NEW"}, s.Symbols())
}

func TestPruneDisabled(t *testing.T) {
	s := NewStore(Options{}, nil, zerolog.Nop())
	s.Append("OLD", 1, t0.Add(-1000*time.Hour))
	assert.Empty(t, s.Prune(t0))
	assert.Equal(t, 1, s.Len())
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "baseline.json")
	p := NewFilePersister(path)

	s := NewStore(Options{Window: 3, MinHistory: 1}, p, zerolog.Nop())
	require.NoError(t, s.Load(context.Background()))
	assert.Zero(t, s.Len(), "missing file starts empty")

	s.Append("BTCUSDT", 1.5, t0)
	s.Append("BTCUSDT", -2.5, t0.Add(time.Minute))
	require.NoError(t, s.Save(context.Background()))

	reloaded := NewStore(Options{Window: 3, MinHistory: 1}, p, zerolog.Nop())
	require.NoError(t, reloaded.Load(context.Background()))
	rec, ok := reloaded.Record("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, []float64{1.5, -2.5}, rec.Values)
	assert.True(t, rec.UpdatedAt.Equal(t0.Add(time.Minute)))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileCorruptStartsCold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	p := NewFilePersister(path)
	_, err := p.Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)

	s := NewStore(Options{}, p, zerolog.Nop())
	require.NoError(t, s.Load(context.Background()))
	assert.Zero(t, s.Len())
}

func TestFileLegacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"BTCUSDT":[1,2,3,4],"ETHUSDT":[]}`), 0o644))

	p := NewFilePersister(path)
	p.now = func() time.Time { return t0 }

	s := NewStore(Options{Window: 3, MinHistory: 3}, p, zerolog.Nop())
	require.NoError(t, s.Load(context.Background()))

	// 超出窗口的历史在加载时截断
	assert.Equal(t, []float64{2, 3, 4}, s.History("BTCUSDT"))
	rec, _ := s.Record("ETHUSDT")
	assert.True(t, rec.UpdatedAt.Equal(t0))
}

type failingPersister struct{ err error }

func (f failingPersister) Load(context.Context) (Snapshot, error) { return nil, f.err }
func (f failingPersister) Save(context.Context, Snapshot) error   { return f.err }

func TestLoadPropagatesIOErrors(t *testing.T) {
	boom := errors.New("disk gone")
	s := NewStore(Options{}, failingPersister{err: boom}, zerolog.Nop())
	assert.ErrorIs(t, s.Load(context.Background()), boom)
	assert.ErrorIs(t, s.Save(context.Background()), boom)
}

type memKV struct {
	data map[string]string
	err  error
}

func (m *memKV) Get(_ context.Context, key string) *redis.StringCmd {
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func TestRedisRoundTrip(t *testing.T) {
	store := &memKV{data: map[string]string{}}
	p := newRedisPersister(store, "")

	snap, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap)

	require.NoError(t, p.Save(context.Background(), Snapshot{"SOLUSDT": {Values: []float64{7}, UpdatedAt: t0}}))
	assert.Contains(t, store.data, DefaultRedisKey)

	snap, err = p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{7}, snap["SOLUSDT"].Values)
}

func TestRedisCorrupt(t *testing.T) {
	store := &memKV{data: map[string]string{"k": "garbage"}}
	p := newRedisPersister(store, "k")

	_, err := p.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestRedisError(t *testing.T) {
	boom := errors.New("connection refused")
	p := newRedisPersister(&memKV{err: boom}, "k")

	_, err := p.Load(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCorrupt)
}
