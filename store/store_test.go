package store

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robjtede/deltoid"
	"github.com/robjtede/deltoid/deltoid_errors"
	"github.com/robjtede/deltoid/history"
)

type counter struct {
	N int64
}

func counterDiffer() *deltoid.Struct[counter] {
	return deltoid.StructOf("counter",
		deltoid.F("n", func(c *counter) *int64 { return &c.N }, deltoid.Atom[int64]()),
	)
}

func pushN(t *testing.T, s *Store[counter, deltoid.StructDelta], log *history.Log[counter, deltoid.StructDelta], n int64) {
	t.Helper()
	for i := int64(1); i <= n; i++ {
		e, err := log.Push("test", counter{N: i})
		require.Nil(t, err)
		_, err = s.Append(e)
		require.Nil(t, err)
	}
}

func TestStoreAppendGet(t *testing.T) {
	dt := counterDiffer()
	s, err := Open(t.TempDir(), dt, nil)
	require.Nil(t, err)
	defer s.Close()

	log := history.NewLog(dt)
	pushN(t, s, log, 3)
	assert.Equal(t, uint64(3), s.Head())

	e, err := s.Get(1)
	require.Nil(t, err)
	assert.Equal(t, "test", e.Origin)

	_, err = s.Get(99)
	assert.ErrorIs(t, err, deltoid_errors.ErrMissingKey)
}

func TestStoreRebuild(t *testing.T) {
	dt := counterDiffer()
	s, err := Open(t.TempDir(), dt, nil)
	require.Nil(t, err)
	defer s.Close()

	log := history.NewLog(dt)
	pushN(t, s, log, 3)

	fulls, err := s.Rebuild()
	require.Nil(t, err)
	require.Len(t, fulls, 3)
	assert.Equal(t, counter{N: 3}, fulls[2].State)
}

func TestStoreReopenRecoversHead(t *testing.T) {
	dt := counterDiffer()
	dir := t.TempDir()

	s, err := Open(dir, dt, nil)
	require.Nil(t, err)
	log := history.NewLog(dt)
	pushN(t, s, log, 2)
	require.Nil(t, s.Close())

	s, err = Open(dir, dt, nil)
	require.Nil(t, err)
	defer s.Close()
	assert.Equal(t, uint64(2), s.Head())

	// appending continues after the recovered head
	e, err := log.Push("test", counter{N: 3})
	require.Nil(t, err)
	seq, err := s.Append(e)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestStoreScan(t *testing.T) {
	dt := counterDiffer()
	s, err := Open(t.TempDir(), dt, nil)
	require.Nil(t, err)
	defer s.Close()

	log := history.NewLog(dt)
	pushN(t, s, log, 4)

	recs, next, err := s.Scan(1, 0)
	require.Nil(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, uint64(4), next)

	// a one-byte budget yields no whole record
	recs, next, err = s.Scan(0, 1)
	require.Nil(t, err)
	assert.Len(t, recs, 0)
	assert.Equal(t, uint64(0), next)
}

func TestStoreResume(t *testing.T) {
	dt := counterDiffer()
	s, err := Open(t.TempDir(), dt, nil)
	require.Nil(t, err)
	defer s.Close()

	log := history.NewLog(dt)
	pushN(t, s, log, 3)

	full, _, err := s.Scan(0, 0)
	require.Nil(t, err)
	require.Len(t, full, 3)

	// resuming on a record boundary drops whole records
	recs, err := s.Resume(0, int64(len(full[0])))
	require.Nil(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, full[1], recs[0])

	// a mid-record cut trims the first record; Split on the receiver
	// side reports it incomplete until the head bytes arrive
	recs, err = s.Resume(0, int64(len(full[0]))+1)
	require.Nil(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, full[1][1:], recs[0])

	_, err = s.Resume(0, 1<<20)
	assert.ErrorIs(t, err, deltoid_errors.ErrBadEnvelope)
}

func TestStoreClosed(t *testing.T) {
	dt := counterDiffer()
	s, err := Open(t.TempDir(), dt, nil)
	require.Nil(t, err)

	// seq 0 enters the decode cache on append
	log := history.NewLog(dt)
	pushN(t, s, log, 1)
	_, err = s.Get(0)
	require.Nil(t, err)

	require.Nil(t, s.Close())
	require.Nil(t, s.Close()) // idempotent

	e, err := log.Push("test", counter{N: 2})
	require.Nil(t, err)
	_, err = s.Append(e)
	assert.ErrorIs(t, err, deltoid_errors.ErrClosed)
	_, _, err = s.Scan(0, 0)
	assert.ErrorIs(t, err, deltoid_errors.ErrClosed)

	// even a cached snapshot is unreachable once closed
	_, err = s.Get(0)
	assert.ErrorIs(t, err, deltoid_errors.ErrClosed)
}

func TestCollector(t *testing.T) {
	dt := counterDiffer()
	s, err := Open(t.TempDir(), dt, nil)
	require.Nil(t, err)
	defer s.Close()

	log := history.NewLog(dt)
	pushN(t, s, log, 2)
	_, err = s.Get(0)
	require.Nil(t, err)

	reg := prometheus.NewRegistry()
	require.Nil(t, reg.Register(NewCollector(s)))
	families, err := reg.Gather()
	require.Nil(t, err)

	byName := map[string]float64{}
	for _, mf := range families {
		byName[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue() + mf.GetMetric()[0].GetCounter().GetValue()
	}
	assert.Equal(t, float64(2), byName["deltoid_store_snapshots"])
	assert.Equal(t, float64(1), byName["deltoid_store_cache_hits_total"])
}
