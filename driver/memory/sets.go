package memory

import (
	"context"
	"sort"

	"github.com/mnorrsken/kvshim/driver"
)

// ============== Set Commands ==============

func (m *Store) set(key string) (map[string]struct{}, error) {
	if ok, err := m.checkType(key, driver.TypeSet); !ok || err != nil {
		return nil, err
	}
	return m.sets[key], nil
}

func (m *Store) SAdd(ctx context.Context, key string, members []string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	s, err := m.set(key)
	if err != nil {
		return 0, err
	}
	if s == nil {
		s = make(map[string]struct{})
		m.sets[key] = s
		m.keyTypes[key] = driver.TypeSet
	}
	var added int64
	for _, mem := range members {
		if _, ok := s[mem]; !ok {
			s[mem] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (m *Store) SRem(ctx context.Context, key string, members []string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	s, err := m.set(key)
	if err != nil || s == nil {
		return 0, err
	}
	var removed int64
	for _, mem := range members {
		if _, ok := s[mem]; ok {
			delete(s, mem)
			removed++
		}
	}
	if len(s) == 0 {
		m.deleteKey(key)
	}
	return removed, nil
}

func (m *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	s, err := m.set(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(s))
	for mem := range s {
		out = append(out, mem)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.mu.Unlock()

	s, err := m.set(key)
	if err != nil {
		return false, err
	}
	_, ok := s[member]
	return ok, nil
}

func (m *Store) SMIsMember(ctx context.Context, key string, members []string) ([]bool, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	s, err := m.set(key)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(members))
	for i, mem := range members {
		_, out[i] = s[mem]
	}
	return out, nil
}

func (m *Store) SCard(ctx context.Context, key string) (int64, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	s, err := m.set(key)
	return int64(len(s)), err
}
