package lane

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsOnLaneWorker(t *testing.T) {
	r := NewRunner(2)
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := Submit(ctx, r, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestSubmitPropagatesError(t *testing.T) {
	r := NewRunner(1)
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	wantErr := errors.New("boom")
	_, err := Submit(ctx, r, func() (string, error) { return "", wantErr })
	require.ErrorIs(t, err, wantErr)
}

func TestSubmitSerializesOnSingleWorker(t *testing.T) {
	r := NewRunner(1)
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var order []int
	done := make(chan struct{})
	go func() {
		v, _ := Submit(ctx, r, func() (int, error) {
			time.Sleep(20 * time.Millisecond)
			order = append(order, 1)
			return 1, nil
		})
		require.Equal(t, 1, v)
		close(done)
	}()

	v, err := Submit(ctx, r, func() (int, error) {
		order = append(order, 2)
		return 2, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, v)
	<-done

	require.Len(t, order, 2)
}
