package pending

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterAssignsOrdinals(t *testing.T) {
	t.Parallel()

	s := New()
	for i, id := range []string{"spec0", "spec1", "spec2"} {
		seq, err := s.Register(id)
		require.NoError(t, err)
		require.Equal(t, i, seq)
	}
	_, err := s.Register("spec1")
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	seq, ok := s.Ordinal("spec2")
	require.True(t, ok)
	require.Equal(t, 2, seq)
	require.Equal(t, 3, s.Len())
}

func TestResolveAtMostOnce(t *testing.T) {
	t.Parallel()

	s := New()
	require.ErrorIs(t, s.Resolve("ghost"), ErrNotRegistered)

	_, err := s.Register("spec0")
	require.NoError(t, err)
	require.False(t, s.Resolved("spec0"))
	require.NoError(t, s.Resolve("spec0"))
	require.True(t, s.Resolved("spec0"))
	require.ErrorIs(t, s.Resolve("spec0"), ErrAlreadyResolved)
	require.Equal(t, 0, s.Len())
}

func TestWaitBlocksUntilAllResolved(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.Register("a")
	require.NoError(t, err)
	_, err = s.Register("b")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Wait(context.Background()) }()

	require.NoError(t, s.Resolve("a"))
	select {
	case <-done:
		t.Fatal("Wait returned while b was pending")
	case <-time.After(50 * time.Millisecond):
	}

	// Registered after Wait started; must also be awaited.
	_, err = s.Register("c")
	require.NoError(t, err)
	require.NoError(t, s.Resolve("b"))
	select {
	case <-done:
		t.Fatal("Wait returned while c was pending")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, s.Resolve("c"))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.Register("stuck")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitOnEmptySet(t *testing.T) {
	t.Parallel()

	require.NoError(t, New().Wait(context.Background()))
}
