package memory

import (
	"context"
	"math"
	"strconv"

	"github.com/mnorrsken/kvshim/driver"
)

// ============== String Commands ==============

func (m *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := m.lock(); err != nil {
		return "", false, err
	}
	defer m.mu.Unlock()

	if ok, err := m.checkType(key, driver.TypeString); !ok || err != nil {
		return "", false, err
	}
	return m.strings[key], true, nil
}

func (m *Store) Set(ctx context.Context, key, value string, opts driver.SetOptions) (driver.SetResult, error) {
	deadline, keep, err := opts.Deadline(m.now())
	if err != nil {
		return driver.SetResult{}, err
	}
	if err := m.lock(); err != nil {
		return driver.SetResult{}, err
	}
	defer m.mu.Unlock()

	var res driver.SetResult
	t, exists := m.typeOf(key)
	if opts.Get && exists {
		if t != driver.TypeString {
			return res, driver.ErrWrongType
		}
		res.Old, res.HadOld = m.strings[key], true
	}
	switch opts.Condition {
	case driver.CondNX:
		if exists {
			return res, nil
		}
	case driver.CondXX:
		if !exists {
			return res, nil
		}
	}

	oldExp, hadExp := m.expiresAt[key]
	m.deleteKey(key)
	m.strings[key] = value
	m.keyTypes[key] = driver.TypeString
	switch {
	case keep && hadExp:
		m.expiresAt[key] = oldExp
	case !deadline.IsZero():
		m.expiresAt[key] = deadline
	}
	res.Written = true
	return res, nil
}

func (m *Store) MGet(ctx context.Context, keys []string) ([]driver.Optional, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	results := make([]driver.Optional, len(keys))
	for i, key := range keys {
		if t, ok := m.typeOf(key); ok && t == driver.TypeString {
			results[i] = driver.Optional{Value: m.strings[key], Valid: true}
		}
	}
	return results, nil
}

func (m *Store) MSet(ctx context.Context, pairs []driver.KeyValue) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	for _, p := range pairs {
		m.deleteKey(p.Key)
		m.strings[p.Key] = p.Value
		m.keyTypes[p.Key] = driver.TypeString
	}
	return nil
}

func (m *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	exists, err := m.checkType(key, driver.TypeString)
	if err != nil {
		return 0, err
	}
	var current int64
	if exists {
		current, err = strconv.ParseInt(m.strings[key], 10, 64)
		if err != nil {
			return 0, driver.ErrNotInteger
		}
	}
	if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
		return 0, driver.ErrOverflow
	}
	result := current + delta
	m.strings[key] = formatInt(result)
	m.keyTypes[key] = driver.TypeString
	return result, nil
}

func (m *Store) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	exists, err := m.checkType(key, driver.TypeString)
	if err != nil {
		return 0, err
	}
	var current float64
	if exists {
		var ok bool
		if current, ok = driver.ParseFloat(m.strings[key]); !ok {
			return 0, driver.ErrNotFloat
		}
	}
	result, err := driver.AddFloat(current, delta)
	if err != nil {
		return 0, err
	}
	m.strings[key] = driver.FormatFloat(result)
	m.keyTypes[key] = driver.TypeString
	return result, nil
}

func (m *Store) Append(ctx context.Context, key, value string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	if _, err := m.checkType(key, driver.TypeString); err != nil {
		return 0, err
	}
	m.strings[key] += value
	m.keyTypes[key] = driver.TypeString
	return int64(len(m.strings[key])), nil
}

func (m *Store) StrLen(ctx context.Context, key string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	if _, err := m.checkType(key, driver.TypeString); err != nil {
		return 0, err
	}
	return int64(len(m.strings[key])), nil
}

func (m *Store) GetDel(ctx context.Context, key string) (string, bool, error) {
	if err := m.lock(); err != nil {
		return "", false, err
	}
	defer m.mu.Unlock()

	if ok, err := m.checkType(key, driver.TypeString); !ok || err != nil {
		return "", false, err
	}
	val := m.strings[key]
	m.deleteKey(key)
	return val, true, nil
}
