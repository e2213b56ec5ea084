package data

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *ConnectionManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connections.json")
	cm, err := NewConnectionManager(path)
	require.NoError(t, err)
	return cm
}

func TestAddAndGetConnection(t *testing.T) {
	cm := testManager(t)

	conn := &Connection{Host: "db.internal", Port: 3306, User: "admin", Password: "secret"}
	require.NoError(t, cm.AddConnection("staging", conn))

	got, err := cm.GetConnection("staging")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", got.Host)
	assert.Equal(t, 3306, got.Port)
}

func TestAddDuplicateConnectionFails(t *testing.T) {
	cm := testManager(t)

	require.NoError(t, cm.AddConnection("staging", &Connection{Host: "a"}))
	err := cm.AddConnection("staging", &Connection{Host: "b"})
	assert.Error(t, err)
}

func TestUpdateConnection(t *testing.T) {
	cm := testManager(t)

	require.NoError(t, cm.AddConnection("staging", &Connection{Host: "a", ProtectedDBs: []string{"prod"}}))
	require.NoError(t, cm.UpdateConnection("staging", &Connection{Host: "b"}))

	got, err := cm.GetConnection("staging")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Host)

	assert.Error(t, cm.UpdateConnection("missing", &Connection{}))
}

func TestRemoveConnection(t *testing.T) {
	cm := testManager(t)

	require.NoError(t, cm.AddConnection("staging", &Connection{Host: "a"}))
	require.NoError(t, cm.RemoveConnection("staging"))

	_, err := cm.GetConnection("staging")
	assert.Error(t, err)
	assert.Error(t, cm.RemoveConnection("staging"))
}

func TestListConnections(t *testing.T) {
	cm := testManager(t)

	names, err := cm.ListConnections()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, cm.AddConnection("staging", &Connection{Host: "a"}))
	require.NoError(t, cm.AddConnection("dev", &Connection{Host: "b"}))

	names, err = cm.ListConnections()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"staging", "dev"}, names)
}

func TestConnectionRoundTripKeepsSSHSettings(t *testing.T) {
	cm := testManager(t)

	conn := &Connection{
		Host:        "db.internal",
		Port:        3306,
		User:        "admin",
		SSHHost:     "jump.example.com",
		SSHPort:     22,
		SSHUser:     "ops",
		SSHKeyPath:  "~/.ssh/id_ed25519",
		BastionHost: "bastion.example.com",
		BastionPort: 2222,
	}
	require.NoError(t, cm.AddConnection("staging", conn))

	got, err := cm.GetConnection("staging")
	require.NoError(t, err)
	assert.Equal(t, conn, got)
}
