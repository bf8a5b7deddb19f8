package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Auth:   AuthConfig{Tenant: "consumers"},
		Graph:  GraphConfig{BaseURL: "https://graph.microsoft.com/v1.0", PageSize: 200},
		Store:  StoreConfig{DataDir: "./data"},
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	missingPort := validConfig()
	missingPort.Server.Port = ""
	assert.Error(t, missingPort.Validate())

	missingDataDir := validConfig()
	missingDataDir.Store.DataDir = ""
	assert.Error(t, missingDataDir.Validate())

	missingTenant := validConfig()
	missingTenant.Auth.Tenant = ""
	assert.Error(t, missingTenant.Validate())

	// A token URL override stands in for the tenant.
	missingTenant.Auth.TokenURL = "http://localhost/token"
	assert.NoError(t, missingTenant.Validate())

	badPageSize := validConfig()
	badPageSize.Graph.PageSize = 0
	assert.Error(t, badPageSize.Validate())

	imapWithoutHost := validConfig()
	imapWithoutHost.IMAP.Enabled = true
	assert.Error(t, imapWithoutHost.Validate())

	auditWithoutPath := validConfig()
	auditWithoutPath.Audit.Enabled = true
	assert.Error(t, auditWithoutPath.Validate())
}
