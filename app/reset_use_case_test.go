package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/journeylab/db-reset-go/domain"
)

// fakeCatalog is an in-memory catalog: database name -> contained tables.
type fakeCatalog struct {
	databases map[string][]string
	calls     []string
	dropErr   error
	createErr error
	existsErr error
	dumpErr   error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{databases: map[string][]string{}}
}

func (f *fakeCatalog) DropDatabaseCascade(_ context.Context, name string) error {
	f.calls = append(f.calls, "drop:"+name)
	if f.dropErr != nil {
		return f.dropErr
	}
	delete(f.databases, name)
	return nil
}

func (f *fakeCatalog) CreateDatabase(_ context.Context, name string) error {
	f.calls = append(f.calls, "create:"+name)
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.databases[name]; exists {
		return fmt.Errorf("%w: database %q already exists", domain.ErrConcurrentModification, name)
	}
	f.databases[name] = nil
	return nil
}

func (f *fakeCatalog) DatabaseExists(_ context.Context, name string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, exists := f.databases[name]
	return exists, nil
}

func (f *fakeCatalog) DumpDatabase(name string, dumpPath string) error {
	f.calls = append(f.calls, "dump:"+name)
	if f.dumpErr != nil {
		return f.dumpErr
	}
	return os.WriteFile(dumpPath, []byte("-- dump of "+name+"\n"), 0644)
}

type fakeSnapshotStore struct {
	stored  []string
	pruned  []string
	failure error
}

func (f *fakeSnapshotStore) StoreSnapshot(dumpPath string, dbName string) (string, error) {
	if f.failure != nil {
		return "", f.failure
	}
	os.Remove(dumpPath)
	f.stored = append(f.stored, dbName)
	return "snapshots/" + dbName, nil
}

func (f *fakeSnapshotStore) CleanupSnapshots(dbName string, _ int) error {
	f.pruned = append(f.pruned, dbName)
	return nil
}

func TestResetDestroysAndRecreates(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.databases["journey"] = []string{"customers"}

	uc := NewResetUseCase(catalog, nil, nil)
	err := uc.Execute(context.Background(), "journey", ResetOptions{})
	require.NoError(t, err)

	tables, exists := catalog.databases["journey"]
	require.True(t, exists, "database should exist after reset")
	assert.Empty(t, tables, "database should contain no objects after reset")
	assert.Equal(t, []string{"drop:journey", "create:journey"}, catalog.calls)
}

func TestResetToleratesAbsentDatabase(t *testing.T) {
	catalog := newFakeCatalog()

	uc := NewResetUseCase(catalog, nil, nil)
	err := uc.Execute(context.Background(), "journey", ResetOptions{})
	require.NoError(t, err)

	_, exists := catalog.databases["journey"]
	assert.True(t, exists)
}

func TestResetIsIdempotent(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.databases["journey"] = []string{"customers", "transactions"}

	uc := NewResetUseCase(catalog, nil, nil)
	for i := 0; i < 2; i++ {
		require.NoError(t, uc.Execute(context.Background(), "journey", ResetOptions{}))
		tables, exists := catalog.databases["journey"]
		require.True(t, exists)
		require.Empty(t, tables)
	}
}

func TestResetLeavesOtherDatabasesAlone(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.databases["journey"] = []string{"customers"}
	catalog.databases["analytics"] = []string{"reports"}

	uc := NewResetUseCase(catalog, nil, nil)
	require.NoError(t, uc.Execute(context.Background(), "journey", ResetOptions{}))

	assert.Equal(t, []string{"reports"}, catalog.databases["analytics"])
}

func TestDropFailureSuppressesCreate(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.databases["journey"] = []string{"customers"}
	catalog.dropErr = fmt.Errorf("%w: DROP command denied", domain.ErrPermission)

	uc := NewResetUseCase(catalog, nil, nil)
	err := uc.Execute(context.Background(), "journey", ResetOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPermission)
	assert.Contains(t, err.Error(), "drop database")
	assert.Equal(t, []string{"drop:journey"}, catalog.calls, "create must not run after a failed drop")
	assert.Equal(t, []string{"customers"}, catalog.databases["journey"], "failed drop leaves state unchanged")
}

func TestCreateRaceSurfacesConcurrentModification(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.createErr = fmt.Errorf("%w: errno 1007", domain.ErrConcurrentModification)

	uc := NewResetUseCase(catalog, nil, nil)
	err := uc.Execute(context.Background(), "journey", ResetOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Contains(t, err.Error(), "create database")
}

func TestConnectivityFailureSurfaces(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.dropErr = fmt.Errorf("%w: dial tcp: connection refused", domain.ErrConnectivity)

	uc := NewResetUseCase(catalog, nil, nil)
	err := uc.Execute(context.Background(), "journey", ResetOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnectivity)
}

func TestProtectedDatabaseRefused(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.databases["mysql"] = []string{"user"}
	catalog.databases["prod_journey"] = []string{"customers"}

	uc := NewResetUseCase(catalog, nil, []string{"prod_journey"})

	for _, name := range []string{"mysql", "sys", "prod_journey"} {
		err := uc.Execute(context.Background(), name, ResetOptions{})
		require.Error(t, err, "reset of %q must be refused", name)
		assert.Contains(t, err.Error(), "protected")
	}
	assert.Empty(t, catalog.calls, "protected databases must never reach the catalog")
}

func TestInvalidNameRejected(t *testing.T) {
	catalog := newFakeCatalog()
	uc := NewResetUseCase(catalog, nil, nil)

	for _, name := range []string{"", "journey;drop", "jour ney", "jo`urney"} {
		err := uc.Execute(context.Background(), name, ResetOptions{})
		require.Error(t, err, "name %q must be rejected", name)
	}
	assert.Empty(t, catalog.calls)
}

func TestSnapshotTakenBeforeDrop(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.databases["journey"] = []string{"customers"}
	snapshots := &fakeSnapshotStore{}

	uc := NewResetUseCase(catalog, snapshots, nil)
	err := uc.Execute(context.Background(), "journey", ResetOptions{Snapshot: true, RetentionCount: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"journey"}, snapshots.stored)
	assert.Equal(t, []string{"journey"}, snapshots.pruned)
	assert.Equal(t, []string{"dump:journey", "drop:journey", "create:journey"}, catalog.calls)
}

func TestSnapshotSkippedForAbsentDatabase(t *testing.T) {
	catalog := newFakeCatalog()
	snapshots := &fakeSnapshotStore{}

	uc := NewResetUseCase(catalog, snapshots, nil)
	err := uc.Execute(context.Background(), "journey", ResetOptions{Snapshot: true})
	require.NoError(t, err)

	assert.Empty(t, snapshots.stored, "nothing to snapshot when the database is absent")
	assert.Equal(t, []string{"drop:journey", "create:journey"}, catalog.calls)
}

func TestSnapshotFailureAbortsReset(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.databases["journey"] = []string{"customers"}
	catalog.dumpErr = errors.New("mysqldump failed")

	uc := NewResetUseCase(catalog, &fakeSnapshotStore{}, nil)
	err := uc.Execute(context.Background(), "journey", ResetOptions{Snapshot: true})

	require.Error(t, err)
	assert.Equal(t, []string{"dump:journey"}, catalog.calls, "drop must not run after a failed snapshot")
	assert.Equal(t, []string{"customers"}, catalog.databases["journey"])
}
