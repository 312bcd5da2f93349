package parallel_test

import (
	"context"
	"errors"
	"iter"
	"testing"
	"testing/synctest"
	"time"

	"github.com/blocklens/blocklens/internal/parallel"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	t.Parallel()

	f := func(_ context.Context, d time.Duration) (int, error) {
		time.Sleep(d)
		return int(d), nil
	}

	input := []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}
	expected := []int{
		int(1 * time.Second),
		int(2 * time.Second),
		int(5 * time.Second),
		int(10 * time.Second),
	}

	type given struct {
		limit int
		ctx   func(t *testing.T) context.Context
	}
	tCtx := func(t *testing.T) context.Context {
		t.Helper()
		return t.Context()
	}
	tmout1s := func(t *testing.T) context.Context {
		t.Helper()
		ctx, cancel := context.WithTimeout(t.Context(), 1*time.Second)
		t.Cleanup(cancel)
		return ctx
	}

	var testCases = []struct {
		scenario string
		given    given
		then     time.Duration
	}{
		{"limit 1", given{1, tCtx}, 18 * time.Second},
		{"limit 10", given{10, tCtx}, 10 * time.Second},
		{"limit 1, cancel 1s", given{1, tmout1s}, 1 * time.Second},
		{"limit 10, cancel 1s", given{10, tmout1s}, 1 * time.Second},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			synctest.Test(t, func(t *testing.T) {
				start := time.Now()
				seq := parallel.Map(tt.given.ctx(t), tt.given.limit, input, f)
				if tt.then >= 10*time.Second {
					require.ElementsMatch(t, expected, values(seq))
				} else {
					_ = values(seq)
				}
				require.Equal(t, tt.then, time.Since(start))
			})
		})
	}
}

func TestMapErrorsAreIsolated(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	f := func(_ context.Context, n int) (int, error) {
		if n%2 == 1 {
			return 0, boom
		}
		return n, nil
	}

	var oks, errs int
	for _, err := range parallel.Map(t.Context(), 2, []int{0, 1, 2, 3, 4}, f) {
		if err != nil {
			require.ErrorIs(t, err, boom)
			errs++
			continue
		}
		oks++
	}
	require.Equal(t, 3, oks)
	require.Equal(t, 2, errs)
}

func values[T any](i iter.Seq2[T, error]) []T {
	var ret []T
	for k := range i {
		ret = append(ret, k)
	}
	return ret
}
