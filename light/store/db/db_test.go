package db

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbm "github.com/tendermint/tm-db"

	"github.com/glint-chain/glintd/crypto"
	"github.com/glint-chain/glintd/light/store"
	"github.com/glint-chain/glintd/types"
)

func lightBlock(height int64, bTime time.Time) *types.LightBlock {
	return &types.LightBlock{
		SignedHeader: &types.SignedHeader{
			Header: &types.Header{Height: height, Time: bTime},
		},
	}
}

// lightBlockWithHash is like lightBlock but with a distinct, non-nil header
// hash derived from app.
func lightBlockWithHash(height int64, bTime time.Time, app string) *types.LightBlock {
	return &types.LightBlock{
		SignedHeader: &types.SignedHeader{
			Header: &types.Header{
				Height:         height,
				Time:           bTime,
				ValidatorsHash: crypto.Checksum([]byte("vals")),
				AppHash:        crypto.Checksum([]byte(app)),
			},
		},
	}
}

func TestLast_FirstLightBlockHeight(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "TestLast_FirstLightBlockHeight")

	// Empty store
	height, err := dbStore.LastLightBlockHeight()
	require.NoError(t, err)
	assert.EqualValues(t, -1, height)

	height, err = dbStore.FirstLightBlockHeight()
	require.NoError(t, err)
	assert.EqualValues(t, -1, height)

	// 1 key
	err = dbStore.SaveLightBlock(lightBlock(1, time.Now()), store.StatusVerified)
	require.NoError(t, err)

	height, err = dbStore.LastLightBlockHeight()
	require.NoError(t, err)
	assert.EqualValues(t, 1, height)

	height, err = dbStore.FirstLightBlockHeight()
	require.NoError(t, err)
	assert.EqualValues(t, 1, height)
}

func Test_SaveLightBlock(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_SaveLightBlock")

	// Empty store
	lb, _, err := dbStore.LightBlock(1)
	require.Error(t, err)
	assert.Equal(t, store.ErrLightBlockNotFound, err)
	assert.Nil(t, lb)

	// 1 key
	err = dbStore.SaveLightBlock(lightBlock(1, time.Now()), store.StatusUnverified)
	require.NoError(t, err)

	lb, status, err := dbStore.LightBlock(1)
	require.NoError(t, err)
	assert.NotNil(t, lb)
	assert.Equal(t, store.StatusUnverified, status)

	// Resaving under a compatible status overwrites.
	err = dbStore.SaveLightBlock(lightBlock(1, time.Now()), store.StatusVerified)
	require.NoError(t, err)

	_, status, err = dbStore.LightBlock(1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusVerified, status)
	assert.EqualValues(t, 1, dbStore.Size())

	// Empty store
	err = dbStore.DeleteLightBlock(1)
	require.NoError(t, err)

	lb, _, err = dbStore.LightBlock(1)
	require.Error(t, err)
	assert.Nil(t, lb)
	assert.EqualValues(t, 0, dbStore.Size())
}

func Test_LightBlockBefore(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_LightBlockBefore")

	assert.Panics(t, func() {
		_, _ = dbStore.LightBlockBefore(0)
		_, _ = dbStore.LightBlockBefore(-1)
	})

	err := dbStore.SaveLightBlock(lightBlock(2, time.Now()), store.StatusVerified)
	require.NoError(t, err)

	lb, err := dbStore.LightBlockBefore(3)
	require.NoError(t, err)
	if assert.NotNil(t, lb) {
		assert.EqualValues(t, 2, lb.Height)
	}

	_, err = dbStore.LightBlockBefore(2)
	require.Error(t, err)
	assert.Equal(t, store.ErrLightBlockNotFound, err)
}

func Test_UpdateStatus(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_UpdateStatus")

	// Absent height is a no-op.
	err := dbStore.UpdateStatus(1, store.StatusTrusted)
	require.NoError(t, err)

	err = dbStore.SaveLightBlock(lightBlock(1, time.Now()), store.StatusUnverified)
	require.NoError(t, err)

	err = dbStore.UpdateStatus(1, store.StatusVerified)
	require.NoError(t, err)

	_, status, err := dbStore.LightBlock(1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusVerified, status)

	err = dbStore.UpdateStatus(1, store.StatusTrusted)
	require.NoError(t, err)

	_, status, err = dbStore.LightBlock(1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusTrusted, status)
}

func Test_ConflictingStatus(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_ConflictingStatus")

	err := dbStore.SaveLightBlock(lightBlock(1, time.Now()), store.StatusTrusted)
	require.NoError(t, err)

	// trusted -> failed is rejected, both on save and on update
	err = dbStore.SaveLightBlock(lightBlock(1, time.Now()), store.StatusFailed)
	require.Error(t, err)
	var confErr store.ErrConflictingStatus
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, store.StatusTrusted, confErr.Old)
	assert.Equal(t, store.StatusFailed, confErr.New)

	err = dbStore.UpdateStatus(1, store.StatusFailed)
	require.Error(t, err)

	// failed -> trusted is rejected too
	err = dbStore.SaveLightBlock(lightBlock(2, time.Now()), store.StatusFailed)
	require.NoError(t, err)
	err = dbStore.UpdateStatus(2, store.StatusTrusted)
	require.Error(t, err)

	// the stored records are unchanged
	_, status, err := dbStore.LightBlock(1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusTrusted, status)

	_, status, err = dbStore.LightBlock(2)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, status)
}

func Test_FailedBlockDoesNotWedgeHeight(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_FailedBlockDoesNotWedgeHeight")

	bad := lightBlockWithHash(1, time.Now(), "bad_app_hash")
	good := lightBlockWithHash(1, time.Now(), "good_app_hash")

	err := dbStore.SaveLightBlock(bad, store.StatusFailed)
	require.NoError(t, err)

	// the exact block that failed can never become trusted
	err = dbStore.SaveLightBlock(bad, store.StatusTrusted)
	require.Error(t, err)
	var confErr store.ErrConflictingStatus
	require.ErrorAs(t, err, &confErr)
	err = dbStore.UpdateStatus(1, store.StatusTrusted)
	require.Error(t, err)

	// but a different block that verified at the same height can
	err = dbStore.SaveLightBlock(good, store.StatusTrusted)
	require.NoError(t, err)

	lb, status, err := dbStore.LightBlock(1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusTrusted, status)
	assert.Equal(t, good.Hash(), lb.Hash())

	assert.EqualValues(t, 1, dbStore.Size())
}

func Test_HighestLowestLightBlock(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_HighestLowestLightBlock")

	// Empty store
	lb, err := dbStore.HighestLightBlock(store.StatusTrusted)
	require.NoError(t, err)
	assert.Nil(t, lb)

	statuses := map[int64]store.Status{
		1: store.StatusTrusted,
		2: store.StatusVerified,
		3: store.StatusTrusted,
		4: store.StatusUnverified,
		5: store.StatusFailed,
	}
	for height, status := range statuses {
		err = dbStore.SaveLightBlock(lightBlock(height, time.Now()), status)
		require.NoError(t, err)
	}

	lb, err = dbStore.HighestLightBlock(store.StatusTrusted)
	require.NoError(t, err)
	if assert.NotNil(t, lb) {
		assert.EqualValues(t, 3, lb.Height)
	}

	lb, err = dbStore.LowestLightBlock(store.StatusTrusted)
	require.NoError(t, err)
	if assert.NotNil(t, lb) {
		assert.EqualValues(t, 1, lb.Height)
	}

	lb, err = dbStore.HighestLightBlock(store.StatusFailed)
	require.NoError(t, err)
	if assert.NotNil(t, lb) {
		assert.EqualValues(t, 5, lb.Height)
	}

	// No block has this status.
	lb, err = dbStore.LowestLightBlock(store.Status(77))
	require.NoError(t, err)
	assert.Nil(t, lb)
}

func Test_PruneExpired(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_PruneExpired")

	var (
		trustingPeriod = 1 * time.Hour
		now            = time.Now()
	)

	// Heights 1-5 are expired, 6-10 are not.
	for i := int64(1); i <= 10; i++ {
		bTime := now.Add(-2 * time.Hour)
		if i > 5 {
			bTime = now.Add(-30 * time.Minute)
		}
		err := dbStore.SaveLightBlock(lightBlock(i, bTime), store.StatusVerified)
		require.NoError(t, err)
	}

	err := dbStore.Prune(now, trustingPeriod, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 5, dbStore.Size())

	_, _, err = dbStore.LightBlock(5)
	assert.Equal(t, store.ErrLightBlockNotFound, err)
	_, _, err = dbStore.LightBlock(6)
	assert.NoError(t, err)
}

func Test_PruneSizeCap(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_PruneSizeCap")

	now := time.Now()
	for i := int64(1); i <= 10; i++ {
		err := dbStore.SaveLightBlock(lightBlock(i, now), store.StatusVerified)
		require.NoError(t, err)
	}

	// Nothing is expired, so only the size cap applies. Oldest blocks go
	// first.
	err := dbStore.Prune(now, 1*time.Hour, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, dbStore.Size())

	height, err := dbStore.FirstLightBlockHeight()
	require.NoError(t, err)
	assert.EqualValues(t, 4, height)
}

func Test_PruneKeepsNewestTrusted(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_PruneKeepsNewestTrusted")

	var (
		trustingPeriod = 1 * time.Hour
		now            = time.Now()
		expired        = now.Add(-2 * time.Hour)
	)

	// The newest trusted block is expired, but must survive pruning.
	err := dbStore.SaveLightBlock(lightBlock(1, expired), store.StatusTrusted)
	require.NoError(t, err)
	err = dbStore.SaveLightBlock(lightBlock(2, expired), store.StatusVerified)
	require.NoError(t, err)

	err = dbStore.Prune(now, trustingPeriod, 100)
	require.NoError(t, err)

	_, status, err := dbStore.LightBlock(1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusTrusted, status)

	_, _, err = dbStore.LightBlock(2)
	assert.Equal(t, store.ErrLightBlockNotFound, err)

	// The size cap does not evict it either.
	err = dbStore.Prune(now, 10*time.Hour, 0)
	require.NoError(t, err)
	_, _, err = dbStore.LightBlock(1)
	assert.NoError(t, err)
}

func Test_Concurrency(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_Concurrency")

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()

			err := dbStore.SaveLightBlock(lightBlock(i, time.Now()), store.StatusVerified)
			require.NoError(t, err)

			_, _, err = dbStore.LightBlock(i)
			if err != nil {
				t.Log(err)
			}
			_, err = dbStore.LastLightBlockHeight()
			if err != nil {
				t.Log(err)
			}
			_, err = dbStore.FirstLightBlockHeight()
			if err != nil {
				t.Log(err)
			}

			err = dbStore.Prune(time.Now(), 1*time.Hour, 2)
			if err != nil {
				t.Log(err)
			}
			_ = dbStore.Size()

			err = dbStore.DeleteLightBlock(1)
			if err != nil {
				t.Log(err)
			}
		}(int64(i))
	}

	wg.Wait()
}
