package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"merchant-ledger/internal/core/domain"

	"github.com/rs/zerolog"
)

// DefaultNotifyRetryIntervals are the waits between delivery attempts.
var DefaultNotifyRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// EventStatusUpdate is the only event type the notifier emits.
const EventStatusUpdate = "TRANSACTION_STATUS_UPDATE"

// StatusPayload is the JSON structure posted to a record's callback URL.
type StatusPayload struct {
	EventType string            `json:"event_type"`
	Data      StatusPayloadData `json:"data"`
}

// StatusPayloadData holds the final record state.
type StatusPayloadData struct {
	TransactionID   string `json:"transaction_id"`
	ExternalRef     string `json:"external_ref,omitempty"`
	Status          string `json:"status"`
	ProcessingState string `json:"processing_state"`
	Amount          int64  `json:"amount"`
	Fee             int64  `json:"fee"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason"`
	Timestamp       int64  `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier implements ports.StatusNotifier. Deliveries run in the
// background with retries. Shutdown ends pending retries; Wait blocks until
// every delivery goroutine has returned.
type Notifier struct {
	httpClient HTTPClient
	intervals  []time.Duration
	timeout    time.Duration
	wg         sync.WaitGroup
	stop       chan struct{}
	stopOnce   sync.Once
	ctx        context.Context // cancelled when Shutdown gives up waiting
	cancel     context.CancelFunc
	log        zerolog.Logger
}

// NewNotifier creates a new Notifier. A nil intervals slice selects
// DefaultNotifyRetryIntervals; timeout bounds each attempt.
func NewNotifier(httpClient HTTPClient, intervals []time.Duration, timeout time.Duration, log zerolog.Logger) *Notifier {
	if intervals == nil {
		intervals = DefaultNotifyRetryIntervals
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		httpClient: httpClient,
		intervals:  intervals,
		timeout:    timeout,
		stop:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		log:        log,
	}
}

// Notify enqueues delivery of rec's final status to its callback URL.
// Records without a callback URL are skipped.
func (n *Notifier) Notify(_ context.Context, rec *domain.TransactionRecord) error {
	if rec.CallbackURL == "" {
		n.log.Debug().Str("tx_id", rec.ID).Msg("notify: no callback URL, skipping")
		return nil
	}

	reason := fmt.Sprintf("Transaction %s", rec.Status)
	if last, ok := rec.LastEntry(); ok && last.Message != "" {
		reason = last.Message
	}

	payload := StatusPayload{
		EventType: EventStatusUpdate,
		Data: StatusPayloadData{
			TransactionID:   rec.ID,
			ExternalRef:     rec.ExternalRef,
			Status:          string(rec.Status),
			ProcessingState: string(rec.ProcessingState),
			Amount:          rec.Amount,
			Fee:             rec.Fee,
			Currency:        rec.Currency,
			Reason:          reason,
			Timestamp:       rec.UpdatedAt.Unix(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliverWithRetries(rec.CallbackURL, body, rec.ID)
	}()
	return nil
}

// Wait blocks until every enqueued delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Shutdown stops scheduling retries and waits for in-flight attempts until
// ctx is done, at which point those attempts are aborted too.
func (n *Notifier) Shutdown(ctx context.Context) error {
	n.stopOnce.Do(func() { close(n.stop) })

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n.cancel()
		<-done
		return ctx.Err()
	}
}

func (n *Notifier) deliverWithRetries(url string, body []byte, txID string) {
	for attempt := 0; attempt <= len(n.intervals); attempt++ {
		if attempt > 0 && !n.sleep(n.intervals[attempt-1]) {
			n.log.Warn().Str("tx_id", txID).Int("attempts", attempt).Msg("notify: shutting down, remaining retries dropped")
			return
		}
		if n.attempt(url, body, txID, attempt+1) {
			return
		}
	}
	n.log.Error().Str("tx_id", txID).Msg("notify: all retry attempts exhausted")
}

// sleep waits d and reports false if Shutdown was called first.
func (n *Notifier) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-n.stop:
		return false
	}
}

func (n *Notifier) attempt(url string, body []byte, txID string, attempt int) bool {
	ctx, cancel := context.WithTimeout(n.ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.log.Error().Err(err).Str("tx_id", txID).Int("attempt", attempt).Msg("notify: failed to create request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.log.Warn().Err(err).Str("tx_id", txID).Int("attempt", attempt).Msg("notify: delivery failed")
		return false
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		n.log.Info().Str("tx_id", txID).Int("attempt", attempt).Int("status", resp.StatusCode).Msg("notify: delivered")
		return true
	}
	n.log.Warn().Str("tx_id", txID).Int("attempt", attempt).Int("status", resp.StatusCode).Msg("notify: non-2xx response, retrying")
	return false
}
