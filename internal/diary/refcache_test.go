package diary

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTableInsertionOrder(t *testing.T) {
	tbl := NewTable[string]()
	tbl.Set("b", "2")
	tbl.Set("a", "1")
	tbl.Set("b", "22")

	assert.Equal(t, []string{"b", "a"}, tbl.Keys())
	assert.Equal(t, []Entry[string]{{ID: "b", Value: "22"}, {ID: "a", Value: "1"}}, tbl.Entries())
}

func TestTableMergeKeepsExisting(t *testing.T) {
	tbl := NewTable[string]()
	tbl.Set("10", "Алгебра")

	assert.False(t, tbl.Merge("10", "Математика"))
	assert.True(t, tbl.Merge("20", "Физика"))

	v, _ := tbl.Get("10")
	assert.Equal(t, "Алгебра", v)
	assert.Equal(t, 2, tbl.Len())
}

func TestTableReset(t *testing.T) {
	tbl := NewTable[int]()
	tbl.Set("x", 1)
	tbl.Reset()

	assert.Zero(t, tbl.Len())
	assert.False(t, tbl.Has("x"))
	assert.Empty(t, tbl.Keys())
}

func TestTableConcurrentMerge(t *testing.T) {
	tbl := NewTable[string]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tbl.Merge(strconv.Itoa(i), "v")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, tbl.Len())
}

func TestRefCacheFallbackNames(t *testing.T) {
	refs := NewRefCache()
	refs.WorkTypes.Set("1", "Тест")

	assert.Equal(t, UnknownSubject, refs.SubjectName("10"))
	assert.Equal(t, "Тест", refs.WorkTypeName("1"))
	assert.Equal(t, UnknownWorkType, refs.WorkTypeName("2"))
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := retry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, zap.NewNop(), "test",
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errUpstream
			}
			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), RetryPolicy{Attempts: 2}, zap.NewNop(), "test",
		func(context.Context) (int, error) {
			calls++
			return 0, errUpstream
		})

	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 2, calls)
}

func TestRetrySingleAttemptByDefault(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), RetryPolicy{}, zap.NewNop(), "test",
		func(context.Context) (int, error) {
			calls++
			return 0, errUpstream
		})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry(ctx, RetryPolicy{Attempts: 5, Backoff: time.Hour}, zap.NewNop(), "test",
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errUpstream
		})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}
