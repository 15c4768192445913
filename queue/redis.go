package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"docintake/types"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix       = "docintake:queue"
	DefaultProbeTimeout = 750 * time.Millisecond
	defaultPollInterval = 250 * time.Millisecond
)

// RedisConfig configures the Redis queue backend.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string        // default "docintake:queue"
	ProbeTimeout time.Duration // default 750ms
}

// RedisBackend stores jobs as hashes and moves ids between a wait list, an
// active set and completed/failed sorted sets scored by finish time.
type RedisBackend struct {
	client       *redis.Client
	prefix       string
	probeTimeout time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// claimScript pops the oldest waiting id unless the queue is paused and marks
// it processing. KEYS: wait, paused, active. ARGV: job key prefix, now ms.
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then return false end
local id = redis.call('RPOP', KEYS[1])
if not id then return false end
redis.call('SADD', KEYS[3], id)
redis.call('HSET', ARGV[1] .. id, 'state', 'processing', 'processedAt', ARGV[2])
return id
`)

// progressScript raises progress, never lowers it, and ignores terminal jobs.
// KEYS: job. ARGV: progress.
var progressScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -1 end
if state == 'completed' or state == 'failed' then return 0 end
local cur = tonumber(redis.call('HGET', KEYS[1], 'progress') or '0')
if tonumber(ARGV[1]) > cur then redis.call('HSET', KEYS[1], 'progress', ARGV[1]) end
return 1
`)

// finishScript applies a terminal transition once.
// KEYS: job, active, target zset. ARGV: state, field, value, now ms, id.
var finishScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -1 end
if state == 'completed' or state == 'failed' then return 0 end
redis.call('HSET', KEYS[1], 'state', ARGV[1], ARGV[2], ARGV[3], 'finishedAt', ARGV[4])
if ARGV[1] == 'completed' then redis.call('HSET', KEYS[1], 'progress', '100') end
redis.call('SREM', KEYS[2], ARGV[5])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[5])
return 1
`)

// rejectScript fails a claimed job whose hash cannot be decoded. The payload
// moves to rawData and unparsable fields are dropped so the job stays readable.
// KEYS: job, active, failed. ARGV: reason, now ms, id.
var rejectScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  redis.call('SREM', KEYS[2], ARGV[3])
  return -1
end
if state == 'completed' or state == 'failed' then return 0 end
local raw = redis.call('HGET', KEYS[1], 'data')
if raw then redis.call('HSET', KEYS[1], 'rawData', raw) end
redis.call('HDEL', KEYS[1], 'data', 'result', 'progress')
for _, f in ipairs({'createdAt', 'processedAt'}) do
  local v = redis.call('HGET', KEYS[1], f)
  if v and not tonumber(v) then redis.call('HDEL', KEYS[1], f) end
end
redis.call('HSET', KEYS[1], 'state', 'failed', 'error', ARGV[1], 'finishedAt', ARGV[2])
redis.call('SREM', KEYS[2], ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[3])
return 1
`)

// requeueScript returns a claimed job to the head of the wait list.
// KEYS: job, active, wait. ARGV: id.
var requeueScript = redis.NewScript(`
if redis.call('SREM', KEYS[2], ARGV[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'state', 'queued')
redis.call('HDEL', KEYS[1], 'processedAt')
redis.call('RPUSH', KEYS[3], ARGV[1])
return 1
`)

// NewRedisBackend creates a client for cfg. It does not connect: an absent
// backend is a normal operating condition.
func NewRedisBackend(cfg RedisConfig) *RedisBackend {
	probe := cfg.ProbeTimeout
	if probe <= 0 {
		probe = DefaultProbeTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: probe,
		MaxRetries:  1,
	})
	b := NewRedisBackendWithClient(client, cfg.Prefix)
	b.probeTimeout = probe
	return b
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisBackend{
		client:       client,
		prefix:       prefix,
		probeTimeout: DefaultProbeTimeout,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
}

func (b *RedisBackend) key(parts ...string) string {
	k := b.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (b *RedisBackend) jobKey(id string) string { return b.key("job", id) }

// Ping is a time-bounded reachability probe.
func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.probeTimeout)
	defer cancel()
	return classify("ping", b.client.Ping(ctx).Err())
}

func (b *RedisBackend) Enqueue(ctx context.Context, req types.JobRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", &DomainError{Op: "enqueue", Err: fmt.Errorf("encode job data: %w", err)}
	}
	id := uuid.New().String()
	now := b.now().UnixMilli()

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, b.jobKey(id),
			"id", id,
			"state", string(types.JobQueued),
			"progress", 0,
			"data", data,
			"createdAt", now,
		)
		pipe.LPush(ctx, b.key("wait"), id)
		return nil
	})
	if err != nil {
		return "", classify("enqueue", err)
	}
	return id, nil
}

func (b *RedisBackend) Status(ctx context.Context, id string) (*types.Job, error) {
	fields, err := b.client.HGetAll(ctx, b.jobKey(id)).Result()
	if err != nil {
		return nil, classify("status", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	job, err := decodeJob(id, fields)
	if err != nil {
		return nil, &DomainError{Op: "status", Err: err}
	}
	return job, nil
}

// Stats pings first; an unreachable backend yields Reachable=false along with
// the connectivity error.
func (b *RedisBackend) Stats(ctx context.Context) (Stats, error) {
	if err := b.Ping(ctx); err != nil {
		return Stats{}, err
	}

	var (
		waiting   *redis.IntCmd
		active    *redis.IntCmd
		completed *redis.IntCmd
		failed    *redis.IntCmd
		paused    *redis.IntCmd
	)
	_, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.LLen(ctx, b.key("wait"))
		active = pipe.SCard(ctx, b.key("active"))
		completed = pipe.ZCard(ctx, b.key("completed"))
		failed = pipe.ZCard(ctx, b.key("failed"))
		paused = pipe.Exists(ctx, b.key("paused"))
		return nil
	})
	if err != nil {
		return Stats{}, classify("stats", err)
	}
	return Stats{
		Reachable: true,
		Paused:    paused.Val() == 1,
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

func (b *RedisBackend) Pause(ctx context.Context) error {
	return classify("pause", b.client.Set(ctx, b.key("paused"), "1", 0).Err())
}

func (b *RedisBackend) Resume(ctx context.Context) error {
	return classify("resume", b.client.Del(ctx, b.key("paused")).Err())
}

// CleanOld removes completed and failed jobs that finished before now-olderThan.
func (b *RedisBackend) CleanOld(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := strconv.FormatInt(b.now().Add(-olderThan).UnixMilli(), 10)
	removed := 0
	for _, set := range []string{b.key("completed"), b.key("failed")} {
		ids, err := b.client.ZRangeByScore(ctx, set, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
		if err != nil {
			return removed, classify("clean", err)
		}
		if len(ids) == 0 {
			continue
		}
		_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				pipe.Del(ctx, b.jobKey(id))
			}
			pipe.ZRem(ctx, set, toAny(ids)...)
			return nil
		})
		if err != nil {
			return removed, classify("clean", err)
		}
		removed += len(ids)
	}
	return removed, nil
}

// Dequeue claims the next waiting job, polling until one is available, wait
// elapses, or ctx is done. It returns nil, nil when nothing was claimed.
func (b *RedisBackend) Dequeue(ctx context.Context, wait time.Duration) (*types.Job, error) {
	deadline := time.Now().Add(wait)
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		id, err := claimScript.Run(ctx, b.client,
			[]string{b.key("wait"), b.key("paused"), b.key("active")},
			b.key("job")+":", b.now().UnixMilli(),
		).Text()
		switch {
		case err == nil:
			return b.loadClaimed(ctx, id)
		case !errors.Is(err, redis.Nil):
			return nil, classify("dequeue", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		sleep := min(b.pollInterval, remaining)
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(sleep):
		}
	}
}

// loadClaimed reads a job the claim script just moved to active. A job that
// cannot be decoded is failed; one that cannot be read for connectivity reasons
// goes back on the wait list. Either way it never stays stuck in active.
func (b *RedisBackend) loadClaimed(ctx context.Context, id string) (*types.Job, error) {
	job, err := b.Status(ctx, id)
	if err == nil && job != nil {
		return job, nil
	}
	if err == nil {
		err = &DomainError{Op: "dequeue", Err: fmt.Errorf("job %s not found", id)}
	}

	// The claim already happened, so settle it even if ctx was cancelled.
	settle := context.WithoutCancel(ctx)
	var settleErr error
	if IsConnectivity(err) {
		settleErr = requeueScript.Run(settle, b.client,
			[]string{b.jobKey(id), b.key("active"), b.key("wait")}, id,
		).Err()
	} else {
		settleErr = rejectScript.Run(settle, b.client,
			[]string{b.jobKey(id), b.key("active"), b.key("failed")},
			"unreadable job: "+err.Error(), b.now().UnixMilli(), id,
		).Err()
	}
	if settleErr != nil {
		return nil, errors.Join(err, classify("dequeue", settleErr))
	}
	return nil, err
}

func (b *RedisBackend) UpdateProgress(ctx context.Context, id string, progress int) error {
	progress = max(0, min(progress, 100))
	n, err := progressScript.Run(ctx, b.client, []string{b.jobKey(id)}, progress).Int()
	if err != nil {
		return classify("progress", err)
	}
	if n < 0 {
		return &DomainError{Op: "progress", Err: fmt.Errorf("job %s not found", id)}
	}
	return nil
}

func (b *RedisBackend) Complete(ctx context.Context, id string, result types.JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return &DomainError{Op: "complete", Err: fmt.Errorf("encode result: %w", err)}
	}
	return b.finish(ctx, "complete", id, types.JobCompleted, "result", string(data), b.key("completed"))
}

func (b *RedisBackend) Fail(ctx context.Context, id string, reason string) error {
	return b.finish(ctx, "fail", id, types.JobFailed, "error", reason, b.key("failed"))
}

func (b *RedisBackend) finish(ctx context.Context, op, id string, state types.JobState, field, value, set string) error {
	n, err := finishScript.Run(ctx, b.client,
		[]string{b.jobKey(id), b.key("active"), set},
		string(state), field, value, b.now().UnixMilli(), id,
	).Int()
	if err != nil {
		return classify(op, err)
	}
	switch n {
	case -1:
		return &DomainError{Op: op, Err: fmt.Errorf("job %s not found", id)}
	case 0:
		return &DomainError{Op: op, Err: fmt.Errorf("job %s: %w", id, ErrJobTerminal)}
	}
	return nil
}

// Close closes the underlying Redis client
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func decodeJob(id string, f map[string]string) (*types.Job, error) {
	job := &types.Job{ID: id, State: types.JobState(f["state"])}
	if job.State == "" {
		return nil, fmt.Errorf("job %s has no state", id)
	}
	if v := f["progress"]; v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("job %s progress %q: %w", id, v, err)
		}
		job.Progress = p
	}
	if v := f["data"]; v != "" {
		if err := json.Unmarshal([]byte(v), &job.Input); err != nil {
			return nil, fmt.Errorf("job %s data: %w", id, err)
		}
	}
	if v := f["result"]; v != "" {
		var res types.JobResult
		if err := json.Unmarshal([]byte(v), &res); err != nil {
			return nil, fmt.Errorf("job %s result: %w", id, err)
		}
		job.Result = &res
	}
	job.Error = f["error"]

	created, err := parseMillis(f["createdAt"])
	if err != nil {
		return nil, fmt.Errorf("job %s createdAt: %w", id, err)
	}
	if created != nil {
		job.CreatedAt = *created
	}
	if job.ProcessedAt, err = parseMillis(f["processedAt"]); err != nil {
		return nil, fmt.Errorf("job %s processedAt: %w", id, err)
	}
	if job.FinishedAt, err = parseMillis(f["finishedAt"]); err != nil {
		return nil, fmt.Errorf("job %s finishedAt: %w", id, err)
	}
	return job, nil
}

func parseMillis(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
