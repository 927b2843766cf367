// Package memory provides an in-process implementation of driver.Driver.
//
// All state lives in maps guarded by a single mutex. Expired keys are
// removed lazily when touched. Pub/sub is delivered through an in-process
// hub to per-subscriber queues, and blocking pops wait on per-key waiters
// woken by pushes.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/internal/glob"
)

// Store is an in-memory backend.
type Store struct {
	mu        sync.Mutex
	strings   map[string]string
	hashes    map[string]map[string]string
	lists     map[string][]string
	sets      map[string]map[string]struct{}
	zsets     map[string]map[string]float64
	keyTypes  map[string]driver.KeyType
	expiresAt map[string]time.Time
	waiters   map[string][]chan struct{}
	closed    bool

	hub *hub

	// now is replaceable in tests
	now func() time.Time
}

var _ driver.Driver = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	s := &Store{
		waiters: make(map[string][]chan struct{}),
		hub:     newHub(),
		now:     time.Now,
	}
	s.reset()
	return s
}

func (m *Store) reset() {
	m.strings = make(map[string]string)
	m.hashes = make(map[string]map[string]string)
	m.lists = make(map[string][]string)
	m.sets = make(map[string]map[string]struct{})
	m.zsets = make(map[string]map[string]float64)
	m.keyTypes = make(map[string]driver.KeyType)
	m.expiresAt = make(map[string]time.Time)
}

// lock acquires the store mutex unless the store is closed.
func (m *Store) lock() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return driver.ErrClosed
	}
	return nil
}

// Close releases blocked callers and subscribers. Later calls fail with
// driver.ErrClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for key := range m.waiters {
		m.wake(key)
	}
	m.mu.Unlock()
	m.hub.closeAll()
	return nil
}

func (m *Store) isExpired(key string) bool {
	if exp, ok := m.expiresAt[key]; ok {
		if !m.now().Before(exp) {
			m.deleteKey(key)
			return true
		}
	}
	return false
}

func (m *Store) deleteKey(key string) {
	delete(m.strings, key)
	delete(m.hashes, key)
	delete(m.lists, key)
	delete(m.sets, key)
	delete(m.zsets, key)
	delete(m.keyTypes, key)
	delete(m.expiresAt, key)
}

// typeOf returns the type of a live key.
func (m *Store) typeOf(key string) (driver.KeyType, bool) {
	if m.isExpired(key) {
		return driver.TypeNone, false
	}
	t, ok := m.keyTypes[key]
	return t, ok
}

// checkType reports whether key exists, failing when it holds another type.
func (m *Store) checkType(key string, want driver.KeyType) (bool, error) {
	t, ok := m.typeOf(key)
	if !ok {
		return false, nil
	}
	if t != want {
		return true, driver.ErrWrongType
	}
	return true, nil
}

// liveKeys returns every non-expired key, sorted.
func (m *Store) liveKeys() []string {
	keys := make([]string, 0, len(m.keyTypes))
	for k := range m.keyTypes {
		if !m.isExpired(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// ============== Server Commands ==============

func (m *Store) Ping(ctx context.Context) error {
	if err := m.lock(); err != nil {
		return err
	}
	m.mu.Unlock()
	return nil
}

func (m *Store) Echo(ctx context.Context, message string) (string, error) {
	if err := m.lock(); err != nil {
		return "", err
	}
	m.mu.Unlock()
	return message, nil
}

func (m *Store) DBSize(ctx context.Context) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return int64(len(m.liveKeys())), nil
}

func (m *Store) FlushDB(ctx context.Context) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()
	m.reset()
	return nil
}

// ============== Key Commands ==============

func (m *Store) Del(ctx context.Context, keys []string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	var n int64
	for _, key := range keys {
		if _, ok := m.typeOf(key); ok {
			m.deleteKey(key)
			n++
		}
	}
	return n, nil
}

func (m *Store) Exists(ctx context.Context, keys []string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	var n int64
	for _, key := range keys {
		if _, ok := m.typeOf(key); ok {
			n++
		}
	}
	return n, nil
}

func (m *Store) Expire(ctx context.Context, key string, ttl time.Duration, cond driver.Condition) (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.mu.Unlock()

	if _, ok := m.typeOf(key); !ok {
		return false, nil
	}
	now := m.now()
	deadline := now.Add(ttl)
	current, hasTTL := m.expiresAt[key]

	switch cond {
	case driver.CondNX:
		if hasTTL {
			return false, nil
		}
	case driver.CondXX:
		if !hasTTL {
			return false, nil
		}
	case driver.CondGT:
		// no TTL counts as infinite
		if !hasTTL || !deadline.After(current) {
			return false, nil
		}
	case driver.CondLT:
		if hasTTL && !deadline.Before(current) {
			return false, nil
		}
	}

	if ttl <= 0 {
		m.deleteKey(key)
		return true, nil
	}
	m.expiresAt[key] = deadline
	return true, nil
}

func (m *Store) TTL(ctx context.Context, key string, unit time.Duration) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	if _, ok := m.typeOf(key); !ok {
		return -2, nil
	}
	exp, ok := m.expiresAt[key]
	if !ok {
		return -1, nil
	}
	remaining := exp.Sub(m.now())
	return int64((remaining + unit/2) / unit), nil
}

func (m *Store) Persist(ctx context.Context, key string) (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.mu.Unlock()

	if _, ok := m.typeOf(key); !ok {
		return false, nil
	}
	if _, ok := m.expiresAt[key]; !ok {
		return false, nil
	}
	delete(m.expiresAt, key)
	return true, nil
}

func (m *Store) Type(ctx context.Context, key string) (driver.KeyType, error) {
	if err := m.lock(); err != nil {
		return driver.TypeNone, err
	}
	defer m.mu.Unlock()

	t, ok := m.typeOf(key)
	if !ok {
		return driver.TypeNone, nil
	}
	return t, nil
}

func (m *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	t, ok := m.typeOf(oldKey)
	if !ok {
		return driver.ErrNoSuchKey
	}
	if oldKey == newKey {
		return nil
	}
	m.typeOf(newKey)
	m.deleteKey(newKey)

	switch t {
	case driver.TypeString:
		m.strings[newKey] = m.strings[oldKey]
	case driver.TypeHash:
		m.hashes[newKey] = m.hashes[oldKey]
	case driver.TypeList:
		m.lists[newKey] = m.lists[oldKey]
	case driver.TypeSet:
		m.sets[newKey] = m.sets[oldKey]
	case driver.TypeZSet:
		m.zsets[newKey] = m.zsets[oldKey]
	}
	m.keyTypes[newKey] = t
	if exp, ok := m.expiresAt[oldKey]; ok {
		m.expiresAt[newKey] = exp
	}
	m.deleteKey(oldKey)
	if t == driver.TypeList {
		m.wake(newKey)
	}
	return nil
}

func (m *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	result := []string{}
	for _, k := range m.liveKeys() {
		if glob.Match(pattern, k) {
			result = append(result, k)
		}
	}
	return result, nil
}

// Scan walks the sorted key space. The cursor is the offset of the next
// key; MATCH and TYPE filter each page after it is cut, as the server does.
func (m *Store) Scan(ctx context.Context, cursor uint64, opts driver.ScanOptions) (driver.ScanPage, error) {
	if err := m.lock(); err != nil {
		return driver.ScanPage{}, err
	}
	defer m.mu.Unlock()

	count := opts.Count
	if count <= 0 {
		count = 10
	}
	keys := m.liveKeys()
	page := driver.ScanPage{Keys: []string{}}
	if cursor >= uint64(len(keys)) {
		return page, nil
	}
	end := cursor + uint64(count)
	if end >= uint64(len(keys)) {
		end = uint64(len(keys))
	} else {
		page.Cursor = end
	}
	for _, k := range keys[cursor:end] {
		if opts.Match != "" && !glob.Match(opts.Match, k) {
			continue
		}
		if opts.Type != "" && string(m.keyTypes[k]) != opts.Type {
			continue
		}
		page.Keys = append(page.Keys, k)
	}
	return page, nil
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
