package memory

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/mnorrsken/kvshim/driver"
)

// ============== Hash Commands ==============

// hash returns the live hash at key, or nil.
func (m *Store) hash(key string) (map[string]string, error) {
	if ok, err := m.checkType(key, driver.TypeHash); !ok || err != nil {
		return nil, err
	}
	return m.hashes[key], nil
}

// hashForWrite returns the hash at key, creating it when absent.
func (m *Store) hashForWrite(key string) (map[string]string, error) {
	h, err := m.hash(key)
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = make(map[string]string)
		m.hashes[key] = h
		m.keyTypes[key] = driver.TypeHash
	}
	return h, nil
}

func (m *Store) HSet(ctx context.Context, key string, fields []driver.FieldValue) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	h, err := m.hashForWrite(key)
	if err != nil {
		return 0, err
	}
	var added int64
	for _, f := range fields {
		if _, ok := h[f.Field]; !ok {
			added++
		}
		h[f.Field] = f.Value
	}
	return added, nil
}

func (m *Store) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.mu.Unlock()

	h, err := m.hashForWrite(key)
	if err != nil {
		return false, err
	}
	if _, ok := h[field]; ok {
		return false, nil
	}
	h[field] = value
	return true, nil
}

func (m *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	if err := m.lock(); err != nil {
		return "", false, err
	}
	defer m.mu.Unlock()

	h, err := m.hash(key)
	if err != nil {
		return "", false, err
	}
	v, ok := h[field]
	return v, ok, nil
}

func (m *Store) HMGet(ctx context.Context, key string, fields []string) ([]driver.Optional, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	h, err := m.hash(key)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Optional, len(fields))
	for i, f := range fields {
		if v, ok := h[f]; ok {
			out[i] = driver.Optional{Value: v, Valid: true}
		}
	}
	return out, nil
}

func (m *Store) HGetAll(ctx context.Context, key string) ([]driver.FieldValue, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	h, err := m.hash(key)
	if err != nil {
		return nil, err
	}
	out := make([]driver.FieldValue, 0, len(h))
	for f, v := range h {
		out = append(out, driver.FieldValue{Field: f, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out, nil
}

func (m *Store) HDel(ctx context.Context, key string, fields []string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	h, err := m.hash(key)
	if err != nil || h == nil {
		return 0, err
	}
	var n int64
	for _, f := range fields {
		if _, ok := h[f]; ok {
			delete(h, f)
			n++
		}
	}
	if len(h) == 0 {
		m.deleteKey(key)
	}
	return n, nil
}

func (m *Store) HExists(ctx context.Context, key, field string) (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.mu.Unlock()

	h, err := m.hash(key)
	if err != nil {
		return false, err
	}
	_, ok := h[field]
	return ok, nil
}

func (m *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	h, err := m.hashForWrite(key)
	if err != nil {
		return 0, err
	}
	var current int64
	if v, ok := h[field]; ok {
		current, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, driver.ErrHashNotInteger
		}
	}
	if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
		return 0, driver.ErrOverflow
	}
	h[field] = formatInt(current + delta)
	return current + delta, nil
}

func (m *Store) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	h, err := m.hashForWrite(key)
	if err != nil {
		return 0, err
	}
	var current float64
	if v, ok := h[field]; ok {
		var valid bool
		if current, valid = driver.ParseFloat(v); !valid {
			return 0, driver.ErrHashNotFloat
		}
	}
	result, err := driver.AddFloat(current, delta)
	if err != nil {
		return 0, err
	}
	h[field] = driver.FormatFloat(result)
	return result, nil
}

func (m *Store) HKeys(ctx context.Context, key string) ([]string, error) {
	fields, err := m.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Field
	}
	return out, nil
}

func (m *Store) HVals(ctx context.Context, key string) ([]string, error) {
	fields, err := m.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Value
	}
	return out, nil
}

func (m *Store) HLen(ctx context.Context, key string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	h, err := m.hash(key)
	if err != nil {
		return 0, err
	}
	return int64(len(h)), nil
}
