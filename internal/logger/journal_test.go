package logger

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-amm/internal/events"
)

func readJournal(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestSwapJournalRecordsSwapEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "swaps.csv")
	j, err := NewSwapJournal(path, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)

	pool := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()
	ctx := context.Background()

	require.NoError(t, j.Handle(ctx, events.SwapExecutedEvent{
		BaseEvent: events.NewBase(events.SwapExecuted),
		Pool:      pool, User: user, IsX: true,
		AmountIn: 10_000, AmountOut: 9_871, Fee: 30,
	}))
	require.NoError(t, j.Handle(ctx, events.SwapRejectedEvent{
		BaseEvent: events.NewBase(events.SwapRejected),
		Pool:      pool, User: user, IsX: false,
		AmountIn: 5, Code: "SlippageExceeded",
	}))
	require.NoError(t, j.Handle(ctx, events.PoolLockChangedEvent{BaseEvent: events.NewBase(events.PoolLockChanged)}))
	require.NoError(t, j.Close())

	records := readJournal(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, JournalHeader, records[0])
	assert.Equal(t, []string{pool.String(), user.String(), "x_to_y", "10000", "9871", "30", "executed", ""}, records[1][1:])
	assert.Equal(t, []string{"y_to_x", "5", "0", "0", "rejected", "SlippageExceeded"}, records[2][3:])

	_, err = time.Parse(time.RFC3339Nano, records[1][0])
	assert.NoError(t, err)

	n, _ := j.GetStats()
	assert.Equal(t, uint64(2), n)
	assert.Error(t, j.WriteRecord([]string{"late"}))
}

func TestSwapJournalAppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swaps.csv")
	logger := zaptest.NewLogger(t)

	for i := 0; i < 2; i++ {
		j, err := NewSwapJournal(path, time.Hour, logger)
		require.NoError(t, err)
		require.NoError(t, j.WriteRecord(make([]string, len(JournalHeader))))
		require.NoError(t, j.Close())
	}

	assert.Len(t, readJournal(t, path), 3)
}

func TestSwapJournalConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swaps.csv")
	j, err := NewSwapJournal(path, 5*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, j.Handle(context.Background(), events.SwapExecutedEvent{
					BaseEvent: events.NewBase(events.SwapExecuted),
					AmountIn:  uint64(i + 1),
				}))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, j.Close())

	assert.Len(t, readJournal(t, path), writers*perWriter+1)
}

func TestSwapJournalFromBus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swaps.csv")
	logger := zaptest.NewLogger(t)
	j, err := NewSwapJournal(path, time.Hour, logger)
	require.NoError(t, err)

	bus := events.NewBus(logger, 8)
	j.Subscribe(bus)

	require.NoError(t, bus.Publish(events.SwapExecutedEvent{BaseEvent: events.NewBase(events.SwapExecuted), AmountIn: 7}))
	require.NoError(t, bus.Shutdown(context.Background()))
	require.NoError(t, j.Close())

	records := readJournal(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, "7", records[1][4])
}
