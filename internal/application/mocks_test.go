package application_test

import (
	"context"
	"slices"
	"sync"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
)

// --- Mock implementations ---

type memCredentialStore struct {
	mu      sync.Mutex
	records []model.CredentialRecord
	loadErr error
	updates int
}

func (m *memCredentialStore) Load(_ context.Context) ([]model.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return []model.CredentialRecord{}, m.loadErr
	}
	return slices.Clone(m.records), nil
}

func (m *memCredentialStore) Save(_ context.Context, records []model.CredentialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = slices.Clone(records)
	return nil
}

func (m *memCredentialStore) Update(_ context.Context, fn func([]model.CredentialRecord) ([]model.CredentialRecord, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return m.loadErr
	}
	updated, err := fn(slices.Clone(m.records))
	if err != nil {
		return err
	}
	m.records = updated
	m.updates++
	return nil
}

type mockGraphClient struct {
	mu sync.Mutex

	resolveFn  func(token string) (string, error)
	mediaFn    func(igUserID string, limit int) ([]model.Media, error)
	insightsFn func(mediaID string) ([]model.Metric, error)
	profileFn  func(igUserID string) ([]model.Metric, error)

	resolveCalls int
	mediaLimits  []int
}

func (m *mockGraphClient) ResolveIGUserID(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()
	if m.resolveFn == nil {
		return "", nil
	}
	return m.resolveFn(token)
}

func (m *mockGraphClient) ListMedia(_ context.Context, igUserID, _ string, limit int) ([]model.Media, error) {
	m.mu.Lock()
	m.mediaLimits = append(m.mediaLimits, limit)
	m.mu.Unlock()
	if m.mediaFn == nil {
		return []model.Media{}, nil
	}
	return m.mediaFn(igUserID, limit)
}

func (m *mockGraphClient) MediaInsights(_ context.Context, mediaID, _ string) ([]model.Metric, error) {
	if m.insightsFn == nil {
		return []model.Metric{}, nil
	}
	return m.insightsFn(mediaID)
}

func (m *mockGraphClient) ProfileInsights(_ context.Context, igUserID, _ string) ([]model.Metric, error) {
	if m.profileFn == nil {
		return []model.Metric{}, nil
	}
	return m.profileFn(igUserID)
}

func (m *mockGraphClient) ExchangeToken(_ context.Context, _ string) (model.LongLivedToken, error) {
	return model.LongLivedToken{}, nil
}

type memSnapshotStore struct {
	mu      sync.Mutex
	byID    map[string]model.Snapshot
	deleted []string
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{byID: make(map[string]model.Snapshot)}
}

func (m *memSnapshotStore) Save(_ context.Context, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[snap.AccountID] = snap
	return nil
}

func (m *memSnapshotStore) Latest(_ context.Context, accountID string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.byID[accountID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *memSnapshotStore) ListLatest(_ context.Context) ([]model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Snapshot, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	return out, nil
}

func (m *memSnapshotStore) DeleteByAccount(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, accountID)
	m.deleted = append(m.deleted, accountID)
	return nil
}

func (m *memSnapshotStore) get(accountID string) (model.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[accountID]
	return s, ok
}
