// internal/logger/journal.go
package logger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-amm/internal/events"
)

// JournalHeader is the first row of every swap journal file.
var JournalHeader = []string{"timestamp", "pool", "user", "side", "amount_in", "amount_out", "fee", "result", "code"}

// SwapJournal appends one CSV row per swap outcome. Safe for concurrent use.
type SwapJournal struct {
	mu       sync.Mutex
	writer   *csv.Writer
	file     *os.File
	ticker   *time.Ticker
	done     chan struct{}
	closed   bool
	logger   *zap.Logger
	filePath string

	// Stats
	writtenRecords uint64
	flushCount     uint64
}

// NewSwapJournal opens (or creates) the journal file and starts periodic flushing.
func NewSwapJournal(filePath string, flushInterval time.Duration, logger *zap.Logger) (*SwapJournal, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	j := &SwapJournal{
		writer:   csv.NewWriter(file),
		file:     file,
		ticker:   time.NewTicker(flushInterval),
		done:     make(chan struct{}),
		logger:   logger.Named("journal"),
		filePath: filePath,
	}

	// Header only for a fresh file, not counted as a record.
	if stat.Size() == 0 {
		if err := j.writer.Write(JournalHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		j.writer.Flush()
	}

	go j.periodicFlush()

	return j, nil
}

// Handle implements events.Handler for swap events.
func (j *SwapJournal) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.SwapExecutedEvent:
		return j.WriteRecord([]string{
			e.Timestamp().UTC().Format(time.RFC3339Nano),
			e.Pool.String(),
			e.User.String(),
			side(e.IsX),
			strconv.FormatUint(e.AmountIn, 10),
			strconv.FormatUint(e.AmountOut, 10),
			strconv.FormatUint(e.Fee, 10),
			"executed",
			"",
		})
	case events.SwapRejectedEvent:
		return j.WriteRecord([]string{
			e.Timestamp().UTC().Format(time.RFC3339Nano),
			e.Pool.String(),
			e.User.String(),
			side(e.IsX),
			strconv.FormatUint(e.AmountIn, 10),
			"0",
			"0",
			"rejected",
			e.Code,
		})
	default:
		return nil
	}
}

// Subscribe registers the journal for both swap event types.
func (j *SwapJournal) Subscribe(bus *events.Bus) []events.Subscription {
	return []events.Subscription{
		bus.Subscribe(events.SwapExecuted, j),
		bus.Subscribe(events.SwapRejected, j),
	}
}

func side(isX bool) string {
	if isX {
		return "x_to_y"
	}
	return "y_to_x"
}

// WriteRecord writes a CSV record.
func (j *SwapJournal) WriteRecord(record []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("journal %s is closed", j.filePath)
	}
	if err := j.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	j.writtenRecords++
	return nil
}

// Flush forces a write of any buffered data
func (j *SwapJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

func (j *SwapJournal) flushLocked() error {
	if j.closed {
		return nil
	}
	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	j.flushCount++
	return nil
}

func (j *SwapJournal) periodicFlush() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.Flush(); err != nil {
				j.logger.Error("Periodic journal flush failed",
					zap.String("file", j.filePath),
					zap.Error(err))
			}
		case <-j.done:
			return
		}
	}
}

// Close flushes and closes the file. Further writes fail.
func (j *SwapJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	close(j.done)
	j.ticker.Stop()

	if err := j.flushLocked(); err != nil {
		j.file.Close()
		j.closed = true
		return err
	}
	j.closed = true
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	j.logger.Info("Swap journal closed",
		zap.String("file", j.filePath),
		zap.Uint64("written_records", j.writtenRecords),
		zap.Uint64("flush_count", j.flushCount))

	return nil
}

// GetStats returns journal statistics
func (j *SwapJournal) GetStats() (records, flushes uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writtenRecords, j.flushCount
}
