// Package store persists compressed snapshot runs in a pebble database,
// one envelope per sequence number. It is a caller of the delta engine,
// not part of it: the engine stays pure while the store does the I/O.
package store

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/robjtede/deltoid"
	"github.com/robjtede/deltoid/codec"
	"github.com/robjtede/deltoid/deltoid_errors"
	"github.com/robjtede/deltoid/history"
	"github.com/robjtede/deltoid/protocol"
	"github.com/robjtede/deltoid/utils"
)

const defaultCacheSize = 1024

type Options struct {
	Logger    utils.Logger
	CacheSize int // decoded-snapshot LRU entries, defaultCacheSize if zero
}

// Store is a pebble-backed log of compressed snapshots for one tracked
// type. Sequence numbers are dense, starting at zero.
type Store[T, D any] struct {
	dt    deltoid.Differ[T, D]
	db    *pebble.DB
	log   utils.Logger
	cache *lru.Cache[uint64, history.Compressed[T, D]]

	lock   sync.Mutex
	head   uint64
	closed bool

	appendedBytes atomic.Uint64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
}

func snapKey(seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = 's'
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

// Open opens (or creates) a store at path. The head sequence number is
// recovered from the last stored key.
func Open[T, D any](path string, dt deltoid.Differ[T, D], opts *Options) (*Store[T, D], error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NopLogger{}
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[uint64, history.Compressed[T, D]](size)
	if err != nil {
		return nil, errors.Wrap(err, "store: cache")
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	s := &Store[T, D]{dt: dt, db: db, log: logger, cache: cache}
	if err = s.recoverHead(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store opened", "path", path, "head", s.head)
	return s, nil
}

func (s *Store[T, D]) recoverHead() error {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: snapKey(0),
		UpperBound: snapKey(^uint64(0)),
	})
	if err != nil {
		return errors.Wrap(err, "store: recover")
	}
	defer it.Close()
	if it.Last() && it.Valid() {
		s.head = binary.BigEndian.Uint64(it.Key()[1:]) + 1
	}
	return nil
}

// Head is the next sequence number, i.e. the count of stored snapshots.
func (s *Store[T, D]) Head() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.head
}

// Append stores one compressed snapshot and returns its sequence number.
func (s *Store[T, D]) Append(e history.Compressed[T, D]) (uint64, error) {
	env, err := codec.Seal(codec.LitSnapshot, e)
	if err != nil {
		return 0, errors.Wrap(err, "store: encode snapshot")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return 0, deltoid_errors.ErrClosed
	}
	seq := s.head
	if err = s.db.Set(snapKey(seq), env, pebble.Sync); err != nil {
		return 0, errors.Wrap(err, "store: append")
	}
	s.head++
	s.cache.Add(seq, e)
	s.appendedBytes.Add(uint64(len(env)))
	s.log.Debug("snapshot appended", "seq", seq, "bytes", len(env), "origin", e.Origin)
	return seq, nil
}

// Get loads one snapshot by sequence number.
func (s *Store[T, D]) Get(seq uint64) (e history.Compressed[T, D], err error) {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return e, deltoid_errors.ErrClosed
	}
	if e, ok := s.cache.Get(seq); ok {
		s.lock.Unlock()
		s.cacheHits.Add(1)
		return e, nil
	}
	s.cacheMisses.Add(1)
	val, closer, err := s.db.Get(snapKey(seq))
	s.lock.Unlock()
	if err == pebble.ErrNotFound {
		return e, fmt.Errorf("%w: snapshot %d", deltoid_errors.ErrMissingKey, seq)
	}
	if err != nil {
		return e, errors.Wrap(err, "store: get")
	}
	defer closer.Close()
	if err = codec.Open(codec.LitSnapshot, val, &e); err != nil {
		return e, err
	}
	s.cache.Add(seq, e)
	return e, nil
}

// Scan returns stored envelopes from seq on, undecoded, cut to maxBytes of
// whole records (no limit when maxBytes <= 0). The second result is where
// the next scan should start.
func (s *Store[T, D]) Scan(from uint64, maxBytes int64) (protocol.Records, uint64, error) {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil, from, deltoid_errors.ErrClosed
	}
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: snapKey(from),
		UpperBound: snapKey(^uint64(0)),
	})
	s.lock.Unlock()
	if err != nil {
		return nil, from, errors.Wrap(err, "store: scan")
	}
	defer it.Close()
	var recs protocol.Records
	next := from
	for ok := it.First(); ok; ok = it.Next() {
		env := make([]byte, len(it.Value()))
		copy(env, it.Value())
		recs = append(recs, env)
		next = binary.BigEndian.Uint64(it.Key()[1:]) + 1
	}
	if maxBytes > 0 {
		prefix, _ := recs.WholeRecordPrefix(maxBytes)
		next = from + uint64(len(prefix))
		recs = prefix
	}
	return recs, next, nil
}

// Resume re-sends the raw envelope stream starting at snapshot from,
// skipping the first skip bytes a receiver already has. The cut may land
// inside a record; the receiver reassembles the stream with
// protocol.Split.
func (s *Store[T, D]) Resume(from uint64, skip int64) (protocol.Records, error) {
	recs, _, err := s.Scan(from, 0)
	if err != nil {
		return nil, err
	}
	if skip > recs.TotalLen() {
		return nil, fmt.Errorf("%w: resume offset %d, run is %d bytes",
			deltoid_errors.ErrBadEnvelope, skip, recs.TotalLen())
	}
	return recs.ExactSuffix(skip), nil
}

// Entries decodes the whole stored run in order.
func (s *Store[T, D]) Entries() ([]history.Compressed[T, D], error) {
	recs, _, err := s.Scan(0, 0)
	if err != nil {
		return nil, err
	}
	run := make([]history.Compressed[T, D], 0, len(recs))
	for _, env := range recs {
		var e history.Compressed[T, D]
		if err = codec.Open(codec.LitSnapshot, env, &e); err != nil {
			return nil, err
		}
		run = append(run, e)
	}
	return run, nil
}

// Rebuild replays the stored run into full snapshots, verifying every
// fingerprint on the way.
func (s *Store[T, D]) Rebuild() ([]history.Full[T], error) {
	run, err := s.Entries()
	if err != nil {
		return nil, err
	}
	return history.Uncompress(s.dt, run)
}

func (s *Store[T, D]) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Info("store closed", "head", s.head)
	return s.db.Close()
}
