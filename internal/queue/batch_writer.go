package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/smukkama/pipeline-monitor/internal/database"
	"github.com/smukkama/pipeline-monitor/internal/model"
	"github.com/smukkama/pipeline-monitor/internal/protocol"
)

// MessageSource is the consuming half of a Kafka topic
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// AlertStore persists the alert audit log
type AlertStore interface {
	InsertLeakAlert(ctx context.Context, alert *database.LeakAlert) (bool, error)
	OpenIncident(ctx context.Context, inc *database.LeakIncident) error
	CloseIncident(ctx context.Context, segmentID string, endTime time.Time) error
}

// BatchWriter consumes alert events and batch-writes them to the database
type BatchWriter struct {
	source        MessageSource
	store         AlertStore
	batchSize     int
	flushInterval time.Duration
	retryBackoff  time.Duration
	maxBackoff    time.Duration
	logger        logrus.FieldLogger
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// errMalformed marks messages that can never be stored
var errMalformed = errors.New("malformed alert event")

const finalFlushTimeout = 10 * time.Second

// NewBatchWriter creates a new batch writer
func NewBatchWriter(source MessageSource, store AlertStore, batchSize int, flushInterval time.Duration, logger logrus.FieldLogger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BatchWriter{
		source:        source,
		store:         store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retryBackoff:  500 * time.Millisecond,
		maxBackoff:    10 * time.Second,
		logger:        logger.WithField("component", "alert-writer"),
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming and writing to the database
func (bw *BatchWriter) Start(ctx context.Context) {
	bw.wg.Add(1)
	go bw.run(ctx)
}

// Stop flushes the pending batch and waits for the writer to exit
func (bw *BatchWriter) Stop() {
	close(bw.stopCh)
	bw.wg.Wait()
}

func (bw *BatchWriter) run(parent context.Context) {
	defer bw.wg.Done()

	// Stop aborts store retries of an in-flight flush
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-bw.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()

	msgChan := make(chan kafka.Message, bw.batchSize)
	go func() {
		for {
			msg, err := bw.source.Consume(fetchCtx)
			if err != nil {
				if fetchCtx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				bw.logger.WithError(err).Warn("Consumer error")
				time.Sleep(100 * time.Millisecond)
				continue
			}
			select {
			case msgChan <- msg:
			case <-fetchCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-bw.stopCh:
			cancelFetch()
			bw.finalFlush(batch)
			return

		case <-ctx.Done():
			bw.finalFlush(batch)
			return

		case <-ticker.C:
			if len(batch) > 0 {
				bw.logger.WithField("messages", len(batch)).Debug("Flush interval reached")
				bw.flush(ctx, batch)
				batch = nil
			}

		case msg := <-msgChan:
			batch = append(batch, msg)
			if len(batch) >= bw.batchSize {
				bw.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

func (bw *BatchWriter) finalFlush(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	bw.flush(ctx, batch)
}

// flush stores the batch in order. Malformed messages are committed and
// skipped. A store failure is retried until it succeeds or ctx ends; the
// rest of the batch is then left uncommitted for redelivery.
func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}

	written := 0
	for _, msg := range batch {
		err := bw.processWithRetry(ctx, msg)
		switch {
		case err == nil:
			written++
		case errors.Is(err, errMalformed):
			bw.logger.WithError(err).WithFields(logrus.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("Skipping malformed message")
		default:
			bw.logger.WithError(err).WithField("offset", msg.Offset).Warn("Flush aborted, leaving messages uncommitted")
			return
		}

		if err := bw.source.Commit(ctx, msg); err != nil {
			bw.logger.WithError(err).Warn("Failed to commit offset")
		}
	}

	bw.logger.WithFields(logrus.Fields{"batch": len(batch), "written": written}).Info("Flushed alert batch")
}

func (bw *BatchWriter) processWithRetry(ctx context.Context, msg kafka.Message) error {
	backoff := bw.retryBackoff
	for {
		err := bw.processMessage(ctx, msg)
		if err == nil || errors.Is(err, errMalformed) {
			return err
		}
		bw.logger.WithError(err).WithField("offset", msg.Offset).Warn("Store failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("giving up on offset %d: %w", msg.Offset, err)
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > bw.maxBackoff {
			backoff = bw.maxBackoff
		}
	}
}

func (bw *BatchWriter) processMessage(ctx context.Context, msg kafka.Message) error {
	event, err := protocol.DecodeAlertEvent(msg.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if event.AlertID == "" {
		return fmt.Errorf("%w: missing alert id", errMalformed)
	}

	row := &database.LeakAlert{
		AlertID:    event.AlertID,
		AlertType:  string(event.Type),
		Severity:   string(event.Severity),
		Message:    event.Message,
		OccurredAt: event.Timestamp,
	}
	if event.SegmentID != "" {
		seg := event.SegmentID
		row.SegmentID = &seg
	}

	// A redelivered alert still applies its incident change, which is
	// idempotent, in case the first attempt failed after the insert.
	if _, err := bw.store.InsertLeakAlert(ctx, row); err != nil {
		return err
	}

	switch {
	case event.Type == model.AlertLeak && event.SegmentID != "":
		return bw.store.OpenIncident(ctx, &database.LeakIncident{
			SegmentID:    event.SegmentID,
			Severity:     string(event.Severity),
			StartAlertID: event.AlertID,
			StartTime:    event.Timestamp,
		})
	case event.IsResolution():
		return bw.store.CloseIncident(ctx, event.SegmentID, event.Timestamp)
	}
	return nil
}
