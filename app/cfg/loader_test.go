package cfg

import (
	"testing"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestConfigFields(t *testing.T) {
	cfg := &Cfg{
		Port:              "8080",
		UserAgent:         "Test Agent",
		WorkerCount:       5,
		SchedulerInterval: 30,
		APIAccessKey:      "test-key",
		Version:           "test-version",
		SourcesDir:        "./sources",
		DBHost:            "localhost",
		DBPort:            "5432",
		DBUser:            "test_user",
		DBPassword:        "test_password",
		DBName:            "test_db",
		FetchTimeout:      30,
		MaxBodySize:       2097152,
		MaxRedirects:      5,
		Timezone:          "UTC",
		Debug:             true,
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port '8080', got '%s'", cfg.Port)
	}
	if cfg.UserAgent != "Test Agent" {
		t.Errorf("Expected user agent 'Test Agent', got '%s'", cfg.UserAgent)
	}
	if cfg.WorkerCount != 5 {
		t.Errorf("Expected worker count 5, got %d", cfg.WorkerCount)
	}
	if cfg.SchedulerInterval != 30 {
		t.Errorf("Expected scheduler interval 30, got %d", cfg.SchedulerInterval)
	}
	if cfg.SourcesDir != "./sources" {
		t.Errorf("Expected sources dir './sources', got '%s'", cfg.SourcesDir)
	}
	if cfg.FetchTimeout != 30 {
		t.Errorf("Expected fetch timeout 30, got %d", cfg.FetchTimeout)
	}
	if cfg.MaxBodySize != 2097152 {
		t.Errorf("Expected max body size 2097152, got %d", cfg.MaxBodySize)
	}
	if cfg.MaxRedirects != 5 {
		t.Errorf("Expected max redirects 5, got %d", cfg.MaxRedirects)
	}
	if !cfg.Debug {
		t.Error("Expected debug to be enabled")
	}
}
