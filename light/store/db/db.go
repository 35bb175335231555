package db

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	amino "github.com/tendermint/go-amino"
	dbm "github.com/tendermint/tm-db"

	cryptoamino "github.com/glint-chain/glintd/crypto/encoding/amino"
	"github.com/glint-chain/glintd/light/store"
	"github.com/glint-chain/glintd/types"
)

var sizeKey = []byte("size")

// lightBlockRecord is what is persisted per height: the block itself plus
// its verification status.
type lightBlockRecord struct {
	LightBlock *types.LightBlock
	Status     store.Status
}

type dbs struct {
	db     dbm.DB
	prefix string

	mtx  sync.RWMutex
	size uint16

	cdc *amino.Codec
}

// New returns a Store that wraps any DB (with an optional prefix in case you
// want to use one DB with many light clients).
//
// Objects are marshalled using amino (github.com/tendermint/go-amino)
func New(db dbm.DB, prefix string) store.Store {
	cdc := amino.NewCodec()
	cryptoamino.RegisterAmino(cdc)

	size := uint16(0)
	bz, err := db.Get(sizeKey)
	if err == nil && len(bz) > 0 {
		size = unmarshalSize(bz)
	}

	return &dbs{db: db, prefix: prefix, cdc: cdc, size: size}
}

// SaveLightBlock persists a LightBlock under the given status.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) SaveLightBlock(lb *types.LightBlock, status store.Status) error {
	if lb.Height <= 0 {
		panic("negative or zero height")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, err := s.readRecord(lb.Height)
	if err != nil {
		return err
	}
	if existing != nil {
		if conflictingSave(existing, lb, status) {
			return store.ErrConflictingStatus{Height: lb.Height, Old: existing.Status, New: status}
		}
	}

	bz, err := s.cdc.MarshalBinaryLengthPrefixed(&lightBlockRecord{LightBlock: lb, Status: status})
	if err != nil {
		return errors.Wrap(err, "marshaling light block")
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err = b.Set(s.lbKey(lb.Height), bz); err != nil {
		return err
	}

	newSize := s.size
	if existing == nil {
		newSize++
	}
	if err = b.Set(sizeKey, marshalSize(newSize)); err != nil {
		return err
	}

	if err = b.WriteSync(); err != nil {
		return err
	}
	s.size = newSize

	return nil
}

// DeleteLightBlock deletes the LightBlock at the given height.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) DeleteLightBlock(height int64) error {
	if height <= 0 {
		panic("negative or zero height")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, err := s.readRecord(height)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err = b.Delete(s.lbKey(height)); err != nil {
		return err
	}
	if err = b.Set(sizeKey, marshalSize(s.size-1)); err != nil {
		return err
	}

	if err = b.WriteSync(); err != nil {
		return err
	}
	s.size--

	return nil
}

// UpdateStatus rewrites the status of the LightBlock at the given height.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) UpdateStatus(height int64, status store.Status) error {
	if height <= 0 {
		panic("negative or zero height")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, err := s.readRecord(height)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if existing.Status == status {
		return nil
	}
	if conflicting(existing.Status, status) {
		return store.ErrConflictingStatus{Height: height, Old: existing.Status, New: status}
	}

	existing.Status = status
	bz, err := s.cdc.MarshalBinaryLengthPrefixed(existing)
	if err != nil {
		return errors.Wrap(err, "marshaling light block")
	}

	return s.db.SetSync(s.lbKey(height), bz)
}

// LightBlock retrieves the LightBlock at the given height along with its
// status.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) LightBlock(height int64) (*types.LightBlock, store.Status, error) {
	if height <= 0 {
		panic("negative or zero height")
	}

	record, err := s.readRecord(height)
	if err != nil {
		return nil, store.StatusUnverified, err
	}
	if record == nil {
		return nil, store.StatusUnverified, store.ErrLightBlockNotFound
	}
	return record.LightBlock, record.Status, nil
}

// HighestLightBlock scans stored blocks from the newest down, returning the
// first one with the given status, or nil.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) HighestLightBlock(status store.Status) (*types.LightBlock, error) {
	itr, err := s.db.ReverseIterator(
		s.lbKey(1),
		append(s.lbKey(1<<63-1), byte(0x00)),
	)
	if err != nil {
		panic(err)
	}
	defer itr.Close()

	for itr.Valid() {
		if _, ok := s.parseLbKey(itr.Key()); ok {
			record, err := s.decodeRecord(itr.Value())
			if err != nil {
				return nil, err
			}
			if record.Status == status {
				return record.LightBlock, nil
			}
		}
		itr.Next()
	}

	return nil, itr.Error()
}

// LowestLightBlock scans stored blocks from the oldest up, returning the
// first one with the given status, or nil.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) LowestLightBlock(status store.Status) (*types.LightBlock, error) {
	itr, err := s.db.Iterator(
		s.lbKey(1),
		append(s.lbKey(1<<63-1), byte(0x00)),
	)
	if err != nil {
		panic(err)
	}
	defer itr.Close()

	for itr.Valid() {
		if _, ok := s.parseLbKey(itr.Key()); ok {
			record, err := s.decodeRecord(itr.Value())
			if err != nil {
				return nil, err
			}
			if record.Status == status {
				return record.LightBlock, nil
			}
		}
		itr.Next()
	}

	return nil, itr.Error()
}

// LastLightBlockHeight returns the last (newest) LightBlock height
// regardless of status.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) LastLightBlockHeight() (int64, error) {
	itr, err := s.db.ReverseIterator(
		s.lbKey(1),
		append(s.lbKey(1<<63-1), byte(0x00)),
	)
	if err != nil {
		panic(err)
	}
	defer itr.Close()

	for itr.Valid() {
		if height, ok := s.parseLbKey(itr.Key()); ok {
			return height, nil
		}
		itr.Next()
	}

	return -1, itr.Error()
}

// FirstLightBlockHeight returns the first (oldest) LightBlock height
// regardless of status.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) FirstLightBlockHeight() (int64, error) {
	itr, err := s.db.Iterator(
		s.lbKey(1),
		append(s.lbKey(1<<63-1), byte(0x00)),
	)
	if err != nil {
		panic(err)
	}
	defer itr.Close()

	for itr.Valid() {
		if height, ok := s.parseLbKey(itr.Key()); ok {
			return height, nil
		}
		itr.Next()
	}

	return -1, itr.Error()
}

// LightBlockBefore iterates over light blocks until it finds a block before
// the given height. It returns ErrLightBlockNotFound if no such block exists.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) LightBlockBefore(height int64) (*types.LightBlock, error) {
	if height <= 0 {
		panic("negative or zero height")
	}

	itr, err := s.db.ReverseIterator(
		s.lbKey(1),
		s.lbKey(height),
	)
	if err != nil {
		panic(err)
	}
	defer itr.Close()

	for itr.Valid() {
		if existingHeight, ok := s.parseLbKey(itr.Key()); ok {
			lb, _, err := s.LightBlock(existingHeight)
			return lb, err
		}
		itr.Next()
	}
	if err = itr.Error(); err != nil {
		return nil, err
	}

	return nil, store.ErrLightBlockNotFound
}

// Prune removes expired light blocks and enforces the size cap. The newest
// trusted block survives both rules.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) Prune(now time.Time, trustingPeriod time.Duration, keep uint16) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	protectedHeight, err := s.newestTrustedHeight()
	if err != nil {
		return err
	}

	itr, err := s.db.Iterator(
		s.lbKey(1),
		append(s.lbKey(1<<63-1), byte(0x00)),
	)
	if err != nil {
		panic(err)
	}

	var (
		heights []int64
		expired []bool
	)
	for itr.Valid() {
		if height, ok := s.parseLbKey(itr.Key()); ok {
			record, err := s.decodeRecord(itr.Value())
			if err != nil {
				itr.Close()
				return err
			}
			heights = append(heights, height)
			expired = append(expired, now.Sub(record.LightBlock.Time) > trustingPeriod)
		}
		itr.Next()
	}
	err = itr.Error()
	itr.Close()
	if err != nil {
		return err
	}

	toDelete := make(map[int64]bool)
	for i, height := range heights {
		if expired[i] && height != protectedHeight {
			toDelete[height] = true
		}
	}

	// Enforce the size cap on what's left, oldest first.
	remaining := len(heights) - len(toDelete)
	for _, height := range heights {
		if remaining <= int(keep) {
			break
		}
		if toDelete[height] || height == protectedHeight {
			continue
		}
		toDelete[height] = true
		remaining--
	}

	if len(toDelete) == 0 {
		return nil
	}

	b := s.db.NewBatch()
	defer b.Close()
	for height := range toDelete {
		if err = b.Delete(s.lbKey(height)); err != nil {
			return err
		}
	}
	newSize := s.size - uint16(len(toDelete))
	if err = b.Set(sizeKey, marshalSize(newSize)); err != nil {
		return err
	}

	if err = b.WriteSync(); err != nil {
		return err
	}
	s.size = newSize

	return nil
}

// Size returns the number of stored light blocks.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) Size() uint16 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.size
}

// newestTrustedHeight returns the height of the newest trusted block, or -1.
// Caller must hold the lock.
func (s *dbs) newestTrustedHeight() (int64, error) {
	itr, err := s.db.ReverseIterator(
		s.lbKey(1),
		append(s.lbKey(1<<63-1), byte(0x00)),
	)
	if err != nil {
		panic(err)
	}
	defer itr.Close()

	for itr.Valid() {
		if height, ok := s.parseLbKey(itr.Key()); ok {
			record, err := s.decodeRecord(itr.Value())
			if err != nil {
				return -1, err
			}
			if record.Status == store.StatusTrusted {
				return height, nil
			}
		}
		itr.Next()
	}

	return -1, itr.Error()
}

func (s *dbs) readRecord(height int64) (*lightBlockRecord, error) {
	bz, err := s.db.Get(s.lbKey(height))
	if err != nil {
		panic(err)
	}
	if len(bz) == 0 {
		return nil, nil
	}
	return s.decodeRecord(bz)
}

func (s *dbs) decodeRecord(bz []byte) (*lightBlockRecord, error) {
	var record *lightBlockRecord
	if err := s.cdc.UnmarshalBinaryLengthPrefixed(bz, &record); err != nil {
		return nil, errors.Wrap(err, "unmarshaling light block")
	}
	return record, nil
}

// conflicting reports whether flipping a block between trusted and failed
// directly is being attempted.
func conflicting(old, new store.Status) bool {
	return (old == store.StatusTrusted && new == store.StatusFailed) ||
		(old == store.StatusFailed && new == store.StatusTrusted)
}

// conflictingSave is the SaveLightBlock variant of conflicting. A failed mark
// applies to the block that failed verification, not to the height: a
// different block that later verifies at the same height may still become
// trusted.
func conflictingSave(existing *lightBlockRecord, lb *types.LightBlock, status store.Status) bool {
	if !conflicting(existing.Status, status) {
		return false
	}
	if existing.Status == store.StatusFailed && status == store.StatusTrusted {
		return bytes.Equal(existing.LightBlock.Hash(), lb.Hash())
	}
	return true
}

func (s *dbs) lbKey(height int64) []byte {
	return []byte(fmt.Sprintf("lb/%s/%020d", s.prefix, height))
}

var keyPattern = regexp.MustCompile(`^lb/([^/]*)/([0-9]+)$`)

func (s *dbs) parseLbKey(key []byte) (height int64, ok bool) {
	submatch := keyPattern.FindSubmatch(key)
	if submatch == nil {
		return 0, false
	}
	if string(submatch[1]) != s.prefix {
		return 0, false
	}
	height, err := strconv.ParseInt(string(submatch[2]), 10, 64)
	if err != nil {
		return 0, false
	}
	return height, true
}

func marshalSize(size uint16) []byte {
	bs := make([]byte, 2)
	binary.LittleEndian.PutUint16(bs, size)
	return bs
}

func unmarshalSize(bz []byte) uint16 {
	return binary.LittleEndian.Uint16(bz)
}
