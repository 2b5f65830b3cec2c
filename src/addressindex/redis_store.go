package addressindex

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/hathorqa/qaconsole/src/model"
	"github.com/pkg/errors"
)

const defaultIndexKey = "address_index"

// RedisStore keeps the index in a redis hash so reverse lookups survive a
// console restart. Records are json values keyed by address.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: defaultIndexKey}
}

func (s *RedisStore) Get(ctx context.Context, address string) (*model.AddressRecord, error) {
	raw, err := s.client.HGet(ctx, s.key, address).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading address %s from redis", address)
	}
	rec := &model.AddressRecord{}
	if err := json.Unmarshal([]byte(raw), rec); err != nil {
		return nil, errors.Wrapf(err, "failed decoding address record for %s", address)
	}
	return rec, nil
}

func (s *RedisStore) Put(ctx context.Context, rec *model.AddressRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed encoding address record")
	}
	return errors.Wrapf(s.client.HSet(ctx, s.key, rec.Address, string(encoded)).Err(),
		"failed writing address %s to redis", rec.Address)
}

func (s *RedisStore) GetAll(ctx context.Context) ([]*model.AddressRecord, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed reading address index from redis")
	}
	out := make([]*model.AddressRecord, 0, len(raw))
	for addr, val := range raw {
		rec := &model.AddressRecord{}
		if err := json.Unmarshal([]byte(val), rec); err != nil {
			return nil, errors.Wrapf(err, "failed decoding address record for %s", addr)
		}
		out = append(out, rec)
	}
	return out, nil
}
