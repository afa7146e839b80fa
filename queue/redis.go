package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "automate:queue:"

// Redis is a Queue on three keys: a "due" sorted set scored by deliver
// time, a "leased" sorted set scored by lease expiry, and a "jobs" hash
// of encoded submissions. Removing an id from "due" is the claim.
type Redis struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedis(client redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

var _ Queue = (*Redis)(nil)

func (q *Redis) dueKey() string    { return q.prefix + "due" }
func (q *Redis) leasedKey() string { return q.prefix + "leased" }
func (q *Redis) jobsKey() string   { return q.prefix + "jobs" }

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (q *Redis) Submit(ctx context.Context, s Submission) (Submission, error) {
	if q == nil || q.client == nil {
		return Submission{}, errors.New("redis queue not configured")
	}
	s = Normalize(s, q.now())
	data, err := json.Marshal(s)
	if err != nil {
		return Submission{}, automate.NewError(automate.ErrQueueSubmitFailed, "encode submission", err, nil)
	}
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.jobsKey(), s.ID, data)
		p.ZAdd(ctx, q.dueKey(), redis.Z{Score: score(s.DeliverAt), Member: s.ID})
		return nil
	})
	if err != nil {
		return Submission{}, err
	}
	return s, nil
}

func (q *Redis) Claim(ctx context.Context, filter ClaimFilter) ([]Submission, error) {
	if q == nil || q.client == nil {
		return nil, errors.New("redis queue not configured")
	}
	filter = filter.normalize()
	if err := q.reap(ctx, filter.Now); err != nil {
		return nil, err
	}

	ids, err := q.client.ZRangeByScore(ctx, q.dueKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(score(filter.Now), 'f', 0, 64),
		Count: int64(filter.Limit * 4),
	}).Result()
	if err != nil {
		return nil, err
	}

	claimed := make([]Submission, 0, filter.Limit)
	for _, id := range ids {
		if len(claimed) >= filter.Limit {
			break
		}
		s, ok, err := q.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			_ = q.client.ZRem(ctx, q.dueKey(), id).Err()
			continue
		}
		// lease fields are cleared on reap; the sorted sets own lease state
		s.LeaseUntil = time.Time{}
		if !filter.Matches(s) {
			continue
		}
		removed, err := q.client.ZRem(ctx, q.dueKey(), id).Result()
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			continue
		}
		s = filter.lease(s)
		data, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, q.jobsKey(), s.ID, data)
			p.ZAdd(ctx, q.leasedKey(), redis.Z{Score: score(s.LeaseUntil), Member: s.ID})
			return nil
		})
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, s)
	}
	return claimed, nil
}

// reap moves expired leases back to the due set.
func (q *Redis) reap(ctx context.Context, now time.Time) error {
	expired, err := q.client.ZRangeByScore(ctx, q.leasedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(score(now), 'f', 0, 64),
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range expired {
		removed, err := q.client.ZRem(ctx, q.leasedKey(), id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.ZAdd(ctx, q.dueKey(), redis.Z{Score: score(now), Member: id}).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *Redis) load(ctx context.Context, id string) (Submission, bool, error) {
	raw, err := q.client.HGet(ctx, q.jobsKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Submission{}, false, nil
	}
	if err != nil {
		return Submission{}, false, err
	}
	var s Submission
	if err := json.Unmarshal(raw, &s); err != nil {
		return Submission{}, false, automate.NewError(automate.ErrInvalidPayload, "decode submission", err, map[string]any{"id": id})
	}
	return s, true, nil
}

func (q *Redis) Ack(ctx context.Context, id string) error {
	if q == nil || q.client == nil {
		return errors.New("redis queue not configured")
	}
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.dueKey(), id)
		p.ZRem(ctx, q.leasedKey(), id)
		p.HDel(ctx, q.jobsKey(), id)
		return nil
	})
	return err
}

func (q *Redis) Pending(ctx context.Context) ([]Submission, error) {
	if q == nil || q.client == nil {
		return nil, errors.New("redis queue not configured")
	}
	all, err := q.client.HGetAll(ctx, q.jobsKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Submission, 0, len(all))
	for id, raw := range all {
		var s Submission
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, automate.NewError(automate.ErrInvalidPayload, "decode submission", err, map[string]any{"id": id})
		}
		out = append(out, s)
	}
	sortSubmissions(out)
	return out, nil
}
