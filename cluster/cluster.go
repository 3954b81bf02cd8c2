// Package cluster implements the partition coordinator (C8): it
// maintains this node's (index, total_workers) assignment within a
// named cluster and notifies the dispatch loop when that assignment
// changes. Two modes, per §4.5: Static reads a fixed assignment from
// configuration once; Dynamic registers this instance in Redis and
// recomputes its position whenever cluster membership changes.
//
// Grounded on the reference codebase's queue/redis Queue (its
// redis.ParseURL/NewClient/Ping connection wiring), adapted from a job
// queue to a membership set plus pub/sub rebalance channel, since
// nothing in the retrieval pack carries a dedicated cluster-membership
// library.
package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"twine.work/common"
	"twine.work/twine"
)

// Static is a ClusterHandle with a fixed assignment read from
// configuration at startup and never changed.
type Static struct {
	assignment twine.Assignment
}

// NewStatic builds a fixed assignment. total must be at least 1; index
// must be in [0, total) or -1 ("not currently a participant").
func NewStatic(index, total int) (*Static, error) {
	if total < 1 {
		return nil, fmt.Errorf("cluster: total_workers must be >= 1, got %d", total)
	}
	if index != -1 && (index < 0 || index >= total) {
		return nil, fmt.Errorf("cluster: node_index %d out of range [0,%d)", index, total)
	}
	return &Static{assignment: twine.Assignment{Index: index, Total: total}}, nil
}

func (s *Static) Assignment() twine.Assignment    { return s.assignment }
func (s *Static) Changes() <-chan twine.Assignment { return nil }

// Config configures a Dynamic coordinator's Redis-backed membership.
type Config struct {
	RedisURL    string
	ClusterKey  string
	Environment string
	InstanceID  string
}

func (c Config) membersKey() string {
	return fmt.Sprintf("twine:cluster:%s:%s:members", c.ClusterKey, c.Environment)
}

func (c Config) channelKey() string {
	return fmt.Sprintf("twine:cluster:%s:%s:rebalance", c.ClusterKey, c.Environment)
}

// Dynamic is a ClusterHandle backed by a Redis set of participating
// instance IDs: index is this instance's position in the
// lexicographically sorted member list, total_workers is the list's
// length. A PUBLISH on the cluster's rebalance channel accompanies every
// Join/Leave so every participating instance recomputes its own
// position. Per §4.5, the balancer callback (delivery onto Changes) is
// serialised by a single goroutine and never fires again once Leave has
// returned.
type Dynamic struct {
	cfg    Config
	client *redis.Client

	mu         sync.Mutex
	assignment twine.Assignment
	changes    chan twine.Assignment

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDynamic connects to Redis (via redis.ParseURL, the reference
// codebase's own Redis connection-string convention) but does not yet
// join the cluster; call Join to register this instance.
func NewDynamic(ctx context.Context, cfg Config) (*Dynamic, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("cluster: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cluster: connect to redis: %w", err)
	}
	return &Dynamic{
		cfg:        cfg,
		client:     client,
		assignment: twine.Assignment{Index: -1, Total: 1},
		changes:    make(chan twine.Assignment, 1),
	}, nil
}

// Join registers this instance in the membership set, publishes a
// rebalance notification, computes this instance's initial assignment,
// and starts the background subscriber that recomputes the assignment
// on every subsequent membership change.
func (d *Dynamic) Join(ctx context.Context) error {
	if err := d.client.SAdd(ctx, d.cfg.membersKey(), d.cfg.InstanceID).Err(); err != nil {
		return fmt.Errorf("cluster: join: %w", err)
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	sub := d.client.Subscribe(bgCtx, d.cfg.channelKey())
	// Block until the subscribe is acknowledged so Join doesn't race the
	// first PUBLISH it is about to send.
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		return fmt.Errorf("cluster: subscribe: %w", err)
	}

	if err := d.recompute(ctx); err != nil {
		sub.Close()
		cancel()
		return err
	}
	if err := d.client.Publish(ctx, d.cfg.channelKey(), "join:"+d.cfg.InstanceID).Err(); err != nil {
		sub.Close()
		cancel()
		return fmt.Errorf("cluster: publish join: %w", err)
	}

	go d.watch(bgCtx, sub)
	return nil
}

// watch is the single goroutine that serialises every assignment
// recomputation and Changes delivery, per §4.5's "never called
// concurrently with itself" guarantee.
func (d *Dynamic) watch(ctx context.Context, sub *redis.PubSub) {
	defer close(d.done)
	defer sub.Close()
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			if err := d.recompute(ctx); err != nil {
				common.Logger.WithError(err).Error("cluster: failed to recompute assignment on rebalance")
			}
		}
	}
}

func (d *Dynamic) recompute(ctx context.Context) error {
	members, err := d.client.SMembers(ctx, d.cfg.membersKey()).Result()
	if err != nil {
		return fmt.Errorf("cluster: list members: %w", err)
	}
	sort.Strings(members)

	index := -1
	for i, m := range members {
		if m == d.cfg.InstanceID {
			index = i
			break
		}
	}
	total := len(members)
	if total == 0 {
		total = 1
	}

	next := twine.Assignment{Index: index, Total: total}
	d.mu.Lock()
	changed := next != d.assignment
	d.assignment = next
	d.mu.Unlock()

	if changed {
		select {
		case d.changes <- next:
		default:
			// Drain the stale pending value so the most recent
			// assignment always wins when the reader is slow.
			select {
			case <-d.changes:
			default:
			}
			d.changes <- next
		}
	}
	return nil
}

// Leave removes this instance from the membership set, notifies the
// remaining participants to rebalance, and stops the background
// subscriber. No further values are ever sent on Changes once Leave
// returns.
func (d *Dynamic) Leave(ctx context.Context) error {
	if err := d.client.SRem(ctx, d.cfg.membersKey(), d.cfg.InstanceID).Err(); err != nil {
		return fmt.Errorf("cluster: leave: %w", err)
	}
	if err := d.client.Publish(ctx, d.cfg.channelKey(), "leave:"+d.cfg.InstanceID).Err(); err != nil {
		common.Logger.WithError(err).Error("cluster: failed to publish leave notification")
	}
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
	d.mu.Lock()
	d.assignment = twine.Assignment{Index: -1, Total: 1}
	d.mu.Unlock()
	return nil
}

// Close releases the underlying Redis client.
func (d *Dynamic) Close() error {
	return d.client.Close()
}

func (d *Dynamic) Assignment() twine.Assignment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.assignment
}

func (d *Dynamic) Changes() <-chan twine.Assignment {
	return d.changes
}
