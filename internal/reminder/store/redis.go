package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/subtrack/internal/reminder/domain"
)

const defaultRedisKey = "subtrack:reminder_jobs"

// RedisStore keeps every pending job as one field of a single hash keyed
// by customer_no, so a save replaces the previous job atomically.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Save(ctx context.Context, job domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, job.CustomerNo, payload).Err()
}

func (s *RedisStore) Delete(ctx context.Context, customerNo string) error {
	return s.client.HDel(ctx, s.key, customerNo).Err()
}

func (s *RedisStore) Get(ctx context.Context, customerNo string) (*domain.Job, error) {
	raw, err := s.client.HGet(ctx, s.key, customerNo).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode reminder job %s: %w", customerNo, err)
	}
	return &job, nil
}

func (s *RedisStore) List(ctx context.Context) ([]domain.Job, error) {
	entries, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]domain.Job, 0, len(entries))
	for customerNo, raw := range entries {
		var job domain.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decode reminder job %s: %w", customerNo, err)
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].FireAt.Equal(jobs[j].FireAt) {
			return jobs[i].FireAt.Before(jobs[j].FireAt)
		}
		return jobs[i].CustomerNo < jobs[j].CustomerNo
	})
	return jobs, nil
}
