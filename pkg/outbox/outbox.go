package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dcbengine/dcbengine/pkg/dcb"
	"github.com/dcbengine/dcbengine/pkg/processor"
)

const globalLockKey = "dcbengine:outbox"

// Outbox wires pkg/processor's scheduler engine to topic routing and
// publisher delivery. The default lock strategy is global — one instance
// pumps every topic — for simplicity.
type Outbox struct {
	store    dcb.EventStore
	progress *processor.ProgressStore
	elector  *processor.LeaderElector
	manager  *processor.Manager
	router   *Router
	config   processor.Config
	instance string
}

// New creates an Outbox. connString is used by the leader elector to open
// its own dedicated advisory-lock connections, independent of pool.
func New(store dcb.EventStore, pool *pgxpool.Pool, connString string, instanceName string, config processor.Config) *Outbox {
	elector := processor.NewLeaderElector(connString)
	return &Outbox{
		store:    store,
		progress: processor.NewProgressStore(pool, "outbox_topic_progress"),
		elector:  elector,
		manager:  processor.NewManager(elector, globalLockKey),
		router:   NewRouter(),
		config:   config,
		instance: instanceName,
	}
}

// Subscribe registers topic and, for each publisher, a scheduler that
// pumps topic's matching events to it. Must be called before Start.
func (o *Outbox) Subscribe(topic Topic, publishers ...Publisher) {
	o.router = NewRouter(append(o.router.Topics(), topic)...)
	for _, p := range publishers {
		key := subscriptionKey(topic.Name, p.Name())
		lockKey := globalLockKey
		if o.config.LockStrategy == processor.LockPerSubscription {
			lockKey = fmt.Sprintf("%s:%s", globalLockKey, key)
		}
		s := processor.NewScheduler(
			key, lockKey, o.config, o.elector, o.progress,
			&fetcher{store: o.store, topic: topic},
			&handler{publisher: p, topicName: topic.Name},
			processor.StatusFailed, // auto-pause: maxConsecutiveErrors sets FAILED, operator must reset
			o.instance, nil,
		)
		o.manager.Register(s)
	}
}

// Start begins pumping every subscribed (topic, publisher) pair. Call
// after migrations have run.
func (o *Outbox) Start(ctx context.Context) { o.manager.Start(ctx) }

// Stop cancels every scheduler and releases this outbox's advisory locks.
func (o *Outbox) Stop(ctx context.Context) { o.manager.Stop(ctx) }

// Pause parks (topic, publisher) without resetting its error count.
func (o *Outbox) Pause(ctx context.Context, topic, publisher string) error {
	return o.progress.Pause(ctx, subscriptionKey(topic, publisher))
}

// Resume reactivates a paused or failed (topic, publisher).
func (o *Outbox) Resume(ctx context.Context, topic, publisher string) error {
	return o.progress.Resume(ctx, subscriptionKey(topic, publisher))
}

// Reset sets (topic, publisher) back to last_position=0, error_count=0,
// status=ACTIVE.
func (o *Outbox) Reset(ctx context.Context, topic, publisher string) error {
	return o.progress.Reset(ctx, subscriptionKey(topic, publisher))
}

// Status returns (topic, publisher)'s progress row.
func (o *Outbox) Status(ctx context.Context, topic, publisher string) (processor.Progress, error) {
	return o.progress.Get(ctx, subscriptionKey(topic, publisher))
}

// StatusAll returns every subscription's progress row.
func (o *Outbox) StatusAll(ctx context.Context) ([]processor.Progress, error) {
	return o.progress.All(ctx)
}
