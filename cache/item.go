package cache

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Item is the envelope persisted for every cached value. ExpiresAt is an
// absolute epoch in seconds.
type Item[T any] struct {
	Value     T     `msgpack:"v"`
	ExpiresAt int64 `msgpack:"e"`
}

// NewItem wraps value with an expiry ttl from now, rounded up to the next
// whole second so the item stays readable for at least ttl.
func NewItem[T any](value T, now time.Time, ttl time.Duration) Item[T] {
	expiresAt := now.Add(ttl)
	secs := expiresAt.Unix()
	if expiresAt.Nanosecond() > 0 {
		secs++
	}
	return Item[T]{
		Value:     value,
		ExpiresAt: secs,
	}
}

// Expired reports whether the item is no longer readable at now.
func (i Item[T]) Expired(now time.Time) bool {
	return now.Unix() >= i.ExpiresAt
}

func encodeItem[T any](item Item[T]) ([]byte, error) {
	return msgpack.Marshal(&item)
}

func decodeItem[T any](raw []byte) (Item[T], error) {
	var item Item[T]
	err := msgpack.Unmarshal(raw, &item)
	return item, err
}
