package sharesync

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// PushResult is invoked after every push attempt cycle: err is nil on
// success (with the relay's new lastUpdatedAt), non-nil after retries are
// exhausted. Terminal failure is not fatal; local data is already durable
// and the next edit re-enqueues.
type PushResult func(billID string, lastUpdatedAt int64, err error)

const (
	defaultPushMaxElapsed = 30 * time.Second
	pushQueueDepth        = 32
)

// Pusher serializes pushes per share channel: one worker per shareID, so
// updates to the same bill reach the relay in order while distinct bills
// push concurrently.
type Pusher struct {
	client     *Client
	log        zerolog.Logger
	notify     []PushResult
	maxElapsed time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queues map[string]chan pushJob
	closed bool
}

type pushJob struct {
	billID     string
	shareID    string
	ciphertext string
}

// PusherOption configures a Pusher.
type PusherOption func(*Pusher)

// WithPushNotify registers a result callback.
func WithPushNotify(fn PushResult) PusherOption {
	return func(p *Pusher) { p.notify = append(p.notify, fn) }
}

// WithPushMaxElapsed bounds the retry window for one push.
func WithPushMaxElapsed(d time.Duration) PusherOption {
	return func(p *Pusher) { p.maxElapsed = d }
}

func NewPusher(client *Client, log zerolog.Logger, opts ...PusherOption) *Pusher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pusher{
		client:     client,
		log:        log,
		maxElapsed: defaultPushMaxElapsed,
		ctx:        ctx,
		cancel:     cancel,
		queues:     make(map[string]chan pushJob),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnResult registers an additional result callback. Callbacks run in
// registration order on the share's worker goroutine.
func (p *Pusher) OnResult(fn PushResult) {
	p.mu.Lock()
	p.notify = append(p.notify, fn)
	p.mu.Unlock()
}

func (p *Pusher) emit(billID string, ts int64, err error) {
	p.mu.Lock()
	fns := make([]PushResult, len(p.notify))
	copy(fns, p.notify)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(billID, ts, err)
	}
}

// Enqueue schedules a push of ciphertext to the bill's share channel.
// Returns immediately; delivery and retries happen on the share's worker.
func (p *Pusher) Enqueue(billID, shareID, ciphertext string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	q, ok := p.queues[shareID]
	if !ok {
		q = make(chan pushJob, pushQueueDepth)
		p.queues[shareID] = q
		p.wg.Add(1)
		go p.worker(q)
	}
	p.mu.Unlock()

	select {
	case q <- pushJob{billID: billID, shareID: shareID, ciphertext: ciphertext}:
	case <-p.ctx.Done():
	}
}

func (p *Pusher) worker(q chan pushJob) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-q:
			// Coalesce: only the newest queued payload matters for a
			// whole-state upsert channel.
			for {
				select {
				case next := <-q:
					j = next
					continue
				default:
				}
				break
			}
			p.push(j)
		}
	}
}

func (p *Pusher) push(j pushJob) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = p.maxElapsed

	ts, err := backoff.RetryWithData(func() (int64, error) {
		return p.client.UpdateShare(p.ctx, j.shareID, j.ciphertext)
	}, backoff.WithContext(bo, p.ctx))
	if err != nil {
		p.log.Warn().Err(err).
			Str("billId", j.billID).
			Str("shareId", j.shareID).
			Msg("share push failed after retries")
		p.emit(j.billID, 0, err)
		return
	}
	p.emit(j.billID, ts, nil)
}

// Close stops all workers. Queued but unpushed jobs are dropped; the data
// they carried is still in the local store.
func (p *Pusher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
