package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/odvcencio/numify/pkg/extract"
	"github.com/odvcencio/numify/pkg/logging"
	"github.com/odvcencio/numify/pkg/session"
)

// defaultExtract is the production extractor; tests swap in a stub per worker.
var defaultExtract = extract.Numbers

// Chat message selectors, primary then fallback.
const (
	ChatMessageSelector  = "div[data-e2e='chat-message']"
	chatFallbackSelector = "div[class*='chat']"
)

// DefaultPollInterval is the cadence of the scrape loop. Chat updates happen
// on a human timescale; sub-second polling buys nothing.
const DefaultPollInterval = 2 * time.Second

// Store is the durable sink for discovered numbers. Writes are best-effort
// from the worker's perspective.
type Store interface {
	AppendNumber(ctx context.Context, uid, number, message string, at time.Time) error
	UpsertSessionMeta(ctx context.Context, uid, liveURL string) error
}

// Config configures a worker.
type Config struct {
	Session      *session.Session
	Provider     Provider
	Store        Store
	Logger       *logging.Logger
	PollInterval time.Duration
	// StoreTimeout bounds each best-effort durable write.
	StoreTimeout time.Duration
}

// Worker drives one session's poll-extract-persist loop. Exactly one worker
// runs per session; it exclusively owns its page handle and its seen-sets.
type Worker struct {
	sess         *session.Session
	provider     Provider
	store        Store
	logger       *logging.Logger
	pollInterval time.Duration
	storeTimeout time.Duration

	extract func(text string) map[string]struct{}
}

// New creates a worker bound to the given session.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Worker{
		sess:         cfg.Session,
		provider:     cfg.Provider,
		store:        cfg.Store,
		logger:       cfg.Logger,
		pollInterval: pollInterval,
		storeTimeout: storeTimeout,
	}
}

// Run executes the scrape loop until the session is stopped externally, the
// context is canceled, or the content provider fails. It is meant to run on
// its own goroutine and never panics out.
func (w *Worker) Run(ctx context.Context) {
	uid := w.sess.UID()
	liveURL := w.sess.LiveURL()

	defer func() {
		if r := recover(); r != nil {
			w.sess.Fail(fmt.Errorf("worker panic: %v", r))
			w.logger.Error(logging.CategoryScraper, "worker_panic", uid, fmt.Sprint(r), nil)
		}
	}()

	page, err := w.provider.Open(ctx, liveURL)
	if err != nil {
		w.sess.Fail(err)
		w.logger.Error(logging.CategoryScraper, "open_failed", uid, err.Error(), map[string]any{
			"live_url": liveURL,
		})
		return
	}
	defer page.Close()

	// A stop requested while the page was opening wins; never resurrect a
	// stopped session into running.
	if w.sess.Status() == session.StatusStopped {
		return
	}
	w.sess.SetStatus(session.StatusRunning)
	w.logger.Info(logging.CategoryScraper, "worker_started", uid, "", map[string]any{
		"live_url": liveURL,
	})

	seenTexts := make(map[string]struct{})
	seenNumbers := make(map[string]struct{})

	for {
		// Stop is cooperative: the control API flips the status and the
		// loop observes it here, between iterations.
		switch w.sess.Status() {
		case session.StatusRunning:
		case session.StatusStopped:
			w.logger.Info(logging.CategoryScraper, "worker_stopped", uid, "", nil)
			return
		default:
			return
		}

		texts, err := page.QueryTextElements(ctx, ChatMessageSelector)
		if err != nil {
			w.sess.Fail(err)
			w.logger.Error(logging.CategoryScraper, "query_failed", uid, err.Error(), nil)
			return
		}
		if len(texts) == 0 {
			if texts, err = page.QueryTextElements(ctx, chatFallbackSelector); err != nil {
				w.sess.Fail(err)
				w.logger.Error(logging.CategoryScraper, "query_failed", uid, err.Error(), nil)
				return
			}
		}

		for _, text := range texts {
			if text == "" {
				continue
			}
			if _, ok := seenTexts[text]; ok {
				continue
			}
			seenTexts[text] = struct{}{}

			for number := range w.extractNumbers(text) {
				if _, ok := seenNumbers[number]; ok {
					continue
				}
				seenNumbers[number] = struct{}{}

				rec := session.Record{
					Number:    number,
					Message:   text,
					Timestamp: time.Now(),
				}
				w.sess.Append(rec)
				metricNumbersExtracted.Inc()
				w.logger.Info(logging.CategoryScraper, "number_found", uid, text, map[string]any{
					"number": number,
				})
				w.persist(uid, liveURL, rec)
			}
		}

		select {
		case <-ctx.Done():
			w.sess.SetStatus(session.StatusStopped)
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// persist performs the fire-and-forget durable writes. Failures are logged
// and never alter the session; the in-memory record already stands.
func (w *Worker) persist(uid, liveURL string, rec session.Record) {
	if w.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.storeTimeout)
	defer cancel()

	if err := w.store.AppendNumber(ctx, uid, rec.Number, rec.Message, rec.Timestamp); err != nil {
		metricStoreWriteFailures.Inc()
		w.logger.Error(logging.CategoryStorage, "append_failed", uid, err.Error(), map[string]any{
			"number": rec.Number,
		})
	}
	if err := w.store.UpsertSessionMeta(ctx, uid, liveURL); err != nil {
		metricStoreWriteFailures.Inc()
		w.logger.Error(logging.CategoryStorage, "meta_upsert_failed", uid, err.Error(), nil)
	}
}

func (w *Worker) extractNumbers(text string) map[string]struct{} {
	if w.extract != nil {
		return w.extract(text)
	}
	return defaultExtract(text)
}
