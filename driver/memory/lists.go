package memory

import (
	"context"
	"time"

	"github.com/mnorrsken/kvshim/driver"
)

// ============== List Commands ==============

func (m *Store) list(key string) ([]string, error) {
	if ok, err := m.checkType(key, driver.TypeList); !ok || err != nil {
		return nil, err
	}
	return m.lists[key], nil
}

// storeList writes back a list, deleting the key once it is empty.
func (m *Store) storeList(key string, l []string) {
	if len(l) == 0 {
		m.deleteKey(key)
		return
	}
	m.lists[key] = l
	m.keyTypes[key] = driver.TypeList
}

func (m *Store) LPush(ctx context.Context, key string, values []string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	l, err := m.list(key)
	if err != nil {
		return 0, err
	}
	next := make([]string, 0, len(l)+len(values))
	for i := len(values) - 1; i >= 0; i-- {
		next = append(next, values[i])
	}
	next = append(next, l...)
	m.storeList(key, next)
	m.wake(key)
	return int64(len(next)), nil
}

func (m *Store) RPush(ctx context.Context, key string, values []string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	l, err := m.list(key)
	if err != nil {
		return 0, err
	}
	l = append(l, values...)
	m.storeList(key, l)
	m.wake(key)
	return int64(len(l)), nil
}

func (m *Store) LPop(ctx context.Context, key string, count int64) ([]string, error) {
	return m.pop(key, count, true)
}

func (m *Store) RPop(ctx context.Context, key string, count int64) ([]string, error) {
	return m.pop(key, count, false)
}

func (m *Store) pop(key string, count int64, left bool) ([]string, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return m.popLocked(key, count, left)
}

func (m *Store) popLocked(key string, count int64, left bool) ([]string, error) {
	l, err := m.list(key)
	if err != nil || l == nil {
		return nil, err
	}
	n := count
	if n < 0 {
		n = 1
	}
	if n > int64(len(l)) {
		n = int64(len(l))
	}
	out := make([]string, 0, n)
	if left {
		out = append(out, l[:n]...)
		l = l[n:]
	} else {
		for i := int64(0); i < n; i++ {
			out = append(out, l[len(l)-1-int(i)])
		}
		l = l[:int64(len(l))-n]
	}
	m.storeList(key, l)
	return out, nil
}

func (m *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	l, err := m.list(key)
	if err != nil {
		return nil, err
	}
	s, e, ok := driver.NormalizeRange(start, stop, int64(len(l)))
	if !ok {
		return []string{}, nil
	}
	return append([]string{}, l[s:e+1]...), nil
}

func (m *Store) LLen(ctx context.Context, key string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	l, err := m.list(key)
	return int64(len(l)), err
}

func (m *Store) LIndex(ctx context.Context, key string, index int64) (string, bool, error) {
	if err := m.lock(); err != nil {
		return "", false, err
	}
	defer m.mu.Unlock()

	l, err := m.list(key)
	if err != nil {
		return "", false, err
	}
	if index < 0 {
		index += int64(len(l))
	}
	if index < 0 || index >= int64(len(l)) {
		return "", false, nil
	}
	return l[index], true, nil
}

func (m *Store) LSet(ctx context.Context, key string, index int64, value string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	l, err := m.list(key)
	if err != nil {
		return err
	}
	if l == nil {
		return driver.ErrNoSuchKey
	}
	if index < 0 {
		index += int64(len(l))
	}
	if index < 0 || index >= int64(len(l)) {
		return driver.ErrIndexOutOfRange
	}
	l[index] = value
	return nil
}

func (m *Store) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	l, err := m.list(key)
	if err != nil || l == nil {
		return 0, err
	}
	limit := count
	if limit < 0 {
		limit = -limit
	}
	var removed int64
	keep := make([]bool, len(l))
	visit := func(i int) {
		if l[i] == value && (limit == 0 || removed < limit) {
			removed++
			return
		}
		keep[i] = true
	}
	if count >= 0 {
		for i := range l {
			visit(i)
		}
	} else {
		for i := len(l) - 1; i >= 0; i-- {
			visit(i)
		}
	}
	next := make([]string, 0, len(l)-int(removed))
	for i, v := range l {
		if keep[i] {
			next = append(next, v)
		}
	}
	m.storeList(key, next)
	return removed, nil
}

func (m *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	l, err := m.list(key)
	if err != nil || l == nil {
		return err
	}
	s, e, ok := driver.NormalizeRange(start, stop, int64(len(l)))
	if !ok {
		m.deleteKey(key)
		return nil
	}
	m.storeList(key, append([]string{}, l[s:e+1]...))
	return nil
}

func (m *Store) BLPop(ctx context.Context, keys []string, timeout time.Duration) (*driver.KeyValue, error) {
	return m.blockingPop(ctx, keys, timeout, true)
}

func (m *Store) BRPop(ctx context.Context, keys []string, timeout time.Duration) (*driver.KeyValue, error) {
	return m.blockingPop(ctx, keys, timeout, false)
}

// blockingPop pops from the first non-empty key, waiting for a push when
// all are empty. A zero timeout waits indefinitely.
func (m *Store) blockingPop(ctx context.Context, keys []string, timeout time.Duration, left bool) (*driver.KeyValue, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if err := m.lock(); err != nil {
			return nil, err
		}
		for _, key := range keys {
			vals, err := m.popLocked(key, -1, left)
			if err != nil {
				m.mu.Unlock()
				return nil, err
			}
			if len(vals) > 0 {
				m.mu.Unlock()
				return &driver.KeyValue{Key: key, Value: vals[0]}, nil
			}
		}
		wait := make(chan struct{})
		for _, key := range keys {
			m.waiters[key] = append(m.waiters[key], wait)
		}
		m.mu.Unlock()

		select {
		case <-wait:
			m.dropWaiter(keys, wait)
		case <-expired:
			m.dropWaiter(keys, wait)
			return nil, nil
		case <-ctx.Done():
			m.dropWaiter(keys, wait)
			return nil, ctx.Err()
		}
	}
}

// wake releases every caller blocked on key. Callers hold mu.
func (m *Store) wake(key string) {
	ws := m.waiters[key]
	if len(ws) == 0 {
		return
	}
	delete(m.waiters, key)
	for _, w := range ws {
		select {
		case <-w:
		default:
			close(w)
		}
	}
}

func (m *Store) dropWaiter(keys []string, wait chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		ws := m.waiters[key]
		for i, w := range ws {
			if w == wait {
				ws = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		if len(ws) == 0 {
			delete(m.waiters, key)
		} else {
			m.waiters[key] = ws
		}
	}
}
