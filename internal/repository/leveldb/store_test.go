package leveldb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/zklogin-recovery/internal/keypair"
	"github.com/dtroode/zklogin-recovery/internal/model"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_KeypairLog(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	var want []model.EphemeralKeypair
	for i := 0; i < 3; i++ {
		kp, err := keypair.Generate()
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, kp))
		want = append(want, kp)
	}

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, want[2].Address, latest.Address)
	assert.True(t, want[2].Randomness.Equal(&latest.Randomness))
	assert.True(t, want[2].CreatedAt.Equal(latest.CreatedAt))
	assert.Equal(t, want[2].PrivateKey.D, latest.PrivateKey.D)

	all, err = s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := range want {
		assert.Equal(t, want[i].Address, all[i].Address)
	}
}

func TestStore_OrderingBeyondOneByte(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	kp, err := keypair.Generate()
	require.NoError(t, err)
	for i := 0; i < 257; i++ {
		require.NoError(t, s.Append(ctx, kp))
	}
	last, err := keypair.Generate()
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, last))

	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, last.Address, got.Address)
}

func TestStore_Token(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	_, err := s.LoadToken(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, s.SaveToken(ctx, "a.b.c"))
	got, err := s.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", got)

	require.NoError(t, s.ClearToken(ctx))
	_, err = s.LoadToken(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	kp, err := keypair.Generate()
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, kp))
	require.NoError(t, s.SaveToken(ctx, "a.b.c"))

	require.NoError(t, s.Clear(ctx))

	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.LoadToken(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, s.Append(ctx, kp))
	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_AppendRejectsEmptyKeypair(t *testing.T) {
	s := newMemStore(t)
	err := s.Append(context.Background(), model.EphemeralKeypair{})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	s, err := Open(dir)
	require.NoError(t, err)
	kp, err := keypair.Generate()
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, kp))
	require.NoError(t, s.SaveToken(ctx, "x.y.z"))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, kp.Address, got.Address)

	token, err := s.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x.y.z", token)
}
