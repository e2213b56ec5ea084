package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "`journey`", quoteIdent("journey"))
	assert.Equal(t, "`journey_2024`", quoteIdent("journey_2024"))
	// Backticks never survive into the statement even if validation is bypassed.
	assert.Equal(t, "`journey`", quoteIdent("jour`ney"))
}

func TestNewCatalogGatewayDefaults(t *testing.T) {
	gw := NewCatalogGateway("db.internal", 3306, "admin", "secret", "",
		"", 0, "", "", "", 0, "", "")

	assert.Equal(t, "db.internal", gw.effectiveHost)
	assert.Equal(t, 3306, gw.effectivePort)
	assert.Nil(t, gw.sshTunnel)
	assert.Equal(t, "mysqldump", gw.mysqldumpPath)
}

func TestNewCatalogGatewayWithTunnel(t *testing.T) {
	gw := NewCatalogGateway("db.internal", 3306, "admin", "secret", "",
		"jump.example.com", 22, "ops", "~/.ssh/id_ed25519",
		"", 0, "", "")

	assert.NotNil(t, gw.sshTunnel)
	// The tunnel is only dialed on first use; construction must not touch it.
	assert.Equal(t, "db.internal", gw.effectiveHost)
}
