// Package storage holds the values a party receives during a session.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"golang.org/x/xerrors"
)

// KVStore is a keyed store of received values.
type KVStore interface {
	Get(key string) (interface{}, bool)
	Put(key string, value interface{}) error
	Del(key string) error
	For(func(key string, value interface{}) error) error
	Len() int
}

// Mailbox is a KVStore whose readers can block until a key is delivered. Each
// key is written once: a second Put with a different value is refused, an
// identical one is ignored.
//
// - implements storage.KVStore
type Mailbox struct {
	sync.Mutex
	store   map[string]interface{}
	waiters map[string][]chan struct{}
	err     error
}

// NewMailbox returns an open, empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		store:   make(map[string]interface{}),
		waiters: make(map[string][]chan struct{}),
	}
}

// Get implements storage.KVStore.
func (m *Mailbox) Get(key string) (interface{}, bool) {
	m.Lock()
	defer m.Unlock()

	value, ok := m.store[key]
	return value, ok
}

// Put implements storage.KVStore. It wakes the readers waiting on key.
func (m *Mailbox) Put(key string, value interface{}) error {
	m.Lock()
	defer m.Unlock()

	if m.err != nil {
		return xerrors.Errorf("mailbox closed: %w", m.err)
	}

	old, ok := m.store[key]
	if ok {
		if Hash(old) != Hash(value) {
			return xerrors.Errorf("conflicting value for %s", key)
		}
		return nil
	}

	m.store[key] = value
	for _, ch := range m.waiters[key] {
		close(ch)
	}
	delete(m.waiters, key)
	return nil
}

// Del implements storage.KVStore.
func (m *Mailbox) Del(key string) error {
	m.Lock()
	defer m.Unlock()

	delete(m.store, key)
	return nil
}

// For implements storage.KVStore. Keys are visited in sorted order.
func (m *Mailbox) For(action func(key string, value interface{}) error) error {
	m.Lock()
	keys := make([]string, 0, len(m.store))
	for k := range m.store {
		keys = append(keys, k)
	}
	values := make(map[string]interface{}, len(m.store))
	for k, v := range m.store {
		values[k] = v
	}
	m.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		err := action(k, values[k])
		if err != nil {
			return err
		}
	}
	return nil
}

// Len implements storage.KVStore.
func (m *Mailbox) Len() int {
	m.Lock()
	defer m.Unlock()

	return len(m.store)
}

// Wait blocks until key is delivered, the mailbox is closed, or ctx is done.
func (m *Mailbox) Wait(ctx context.Context, key string) (interface{}, error) {
	m.Lock()
	if value, ok := m.store[key]; ok {
		m.Unlock()
		return value, nil
	}
	if m.err != nil {
		err := m.err
		m.Unlock()
		return nil, err
	}
	ch := make(chan struct{})
	m.waiters[key] = append(m.waiters[key], ch)
	m.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.Lock()
	defer m.Unlock()

	value, ok := m.store[key]
	if !ok {
		return nil, m.err
	}
	return value, nil
}

// Close wakes every reader with err and refuses further writes. Only the
// first error is kept.
func (m *Mailbox) Close(err error) {
	if err == nil {
		err = xerrors.New("mailbox closed")
	}

	m.Lock()
	defer m.Unlock()

	if m.err != nil {
		return
	}
	m.err = err
	for key, chs := range m.waiters {
		for _, ch := range chs {
			close(ch)
		}
		delete(m.waiters, key)
	}
}

// Err returns the error the mailbox was closed with, if any.
func (m *Mailbox) Err() error {
	m.Lock()
	defer m.Unlock()

	return m.err
}

// Hash returns the hex sha256 of the JSON encoding of value.
func Hash(value interface{}) string {
	h := sha256.New()
	bytes, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	h.Write(bytes)

	return hex.EncodeToString(h.Sum(nil))
}
