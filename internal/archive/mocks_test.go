package archive

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ekoi/dataverse-archiver/internal/bridge"
	"github.com/ekoi/dataverse-archiver/internal/store"
	"github.com/ekoi/dataverse-archiver/pkg/models"
)

// --- bridge stub ---

type stubBridge struct {
	mu          sync.Mutex
	submitRes   *bridge.Result
	submitErr   error
	submitCalls int

	// stateFn is invoked per State call with the 1-based call number.
	stateFn    func(call int) (*bridge.Result, error)
	stateCalls int
}

func (b *stubBridge) Submit(_ context.Context, _ bridge.IngestRequest) (*bridge.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitCalls++
	return b.submitRes, b.submitErr
}

func (b *stubBridge) State(_ context.Context, _ bridge.StateQuery) (*bridge.Result, error) {
	b.mu.Lock()
	b.stateCalls++
	n := b.stateCalls
	fn := b.stateFn
	b.mu.Unlock()
	if fn == nil {
		return &bridge.Result{StatusCode: 200, Payload: &bridge.StatusPayload{State: "IN-PROGRESS"}}, nil
	}
	return fn(n)
}

func (b *stubBridge) countStateCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateCalls
}

// --- store mock ---

type mockStore struct {
	mu       sync.Mutex
	versions map[string]*models.DatasetVersion
	recorded []string
}

func newMockStore() *mockStore {
	return &mockStore{versions: make(map[string]*models.DatasetVersion)}
}

func (m *mockStore) addVersion(globalID, version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[globalID+"|"+version] = &models.DatasetVersion{
		ID:             uuid.New(),
		FriendlyNumber: version,
	}
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

func (m *mockStore) UpsertDatasetVersion(_ context.Context, globalID, friendlyNumber string) (*models.DatasetVersion, error) {
	m.addVersion(globalID, friendlyNumber)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[globalID+"|"+friendlyNumber], nil
}

func (m *mockStore) GetDatasetVersion(_ context.Context, globalID, friendlyNumber string) (*models.DatasetVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[globalID+"|"+friendlyNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *mockStore) RecordArchiveState(_ context.Context, globalID, friendlyNumber, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[globalID+"|"+friendlyNumber]
	if !ok {
		return store.ErrNotFound
	}
	v.ArchiveState = &state
	now := time.Now()
	v.ArchiveTime = &now
	m.recorded = append(m.recorded, state)
	return nil
}

func (m *mockStore) RecordArchived(_ context.Context, globalID, friendlyNumber, state, note, pid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[globalID+"|"+friendlyNumber]
	if !ok {
		return false, store.ErrNotFound
	}
	if v.ArchiveNote != nil && strings.Contains(*v.ArchiveNote, pid) {
		return false, nil
	}
	v.ArchiveState = &state
	v.ArchiveNote = &note
	now := time.Now()
	v.ArchiveTime = &now
	m.recorded = append(m.recorded, state)
	return true, nil
}

func (m *mockStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error { return nil }
func (m *mockStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (m *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (m *mockStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)  { return nil, nil }
func (m *mockStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error        { return nil }

func (m *mockStore) recordedStates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.recorded))
	copy(out, m.recorded)
	return out
}

func (m *mockStore) version(globalID, friendlyNumber string) *models.DatasetVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[globalID+"|"+friendlyNumber]
	if !ok {
		return nil
	}
	cp := *v
	return &cp
}

// --- cache mock ---

type mockCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newMockCache() *mockCache {
	return &mockCache{values: make(map[string]string)}
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = string(value)
	return nil
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return []byte(v), ok, nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *mockCache) Ping(_ context.Context) error { return nil }

func (c *mockCache) SetArchiveState(_ context.Context, globalID, version, state string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values["archive:state:"+globalID+":"+version] = state
	return nil
}

func (c *mockCache) GetArchiveState(_ context.Context, globalID, version string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values["archive:state:"+globalID+":"+version]
	return v, ok, nil
}

func (c *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- notifier mock ---

type notification struct {
	state  State
	detail string
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *mockNotifier) Notify(_ context.Context, state State, _ models.ArchiveJob, detail string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{state: state, detail: detail})
	return nil
}

func (n *mockNotifier) notifications() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification, len(n.sent))
	copy(out, n.sent)
	return out
}

// --- shared helpers ---

func testJob() models.ArchiveJob {
	return models.ArchiveJob{
		PersistentID:      "doi:10.5072/FK2/ABC123",
		VersionNumber:     "1.0",
		TargetName:        "EASY",
		SourceMetadataURL: "https://dataverse.example.org/export/doi:10.5072/FK2/ABC123",
		SubmitterAPIToken: "src-token",
		SubmitterEmail:    "depositor@example.org",
		Credentials: models.TargetCredentials{
			Username: "archivist",
			Password: "secret",
		},
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
