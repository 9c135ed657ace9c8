package database

import (
	"testing"
	"time"

	"github.com/staffmission/dispatch/internal/config"
)

func TestPoolConfig(t *testing.T) {
	cfg := &config.Config{
		DBHost:            "db.local",
		DBPort:            5432,
		DBName:            "dispatch",
		DBUser:            "dispatch",
		DBPassword:        "secret",
		DBSSLMode:         "disable",
		DBMaxConns:        15,
		DBMinConns:        3,
		DBMaxConnLifetime: 30 * time.Minute,
	}

	poolCfg, err := poolConfig(cfg)
	if err != nil {
		t.Fatalf("не удалось собрать конфигурацию пула: %v", err)
	}

	if poolCfg.MaxConns != 15 {
		t.Errorf("MaxConns: ожидалось 15, получено %d", poolCfg.MaxConns)
	}
	if poolCfg.MinConns != 3 {
		t.Errorf("MinConns: ожидалось 3, получено %d", poolCfg.MinConns)
	}
	if poolCfg.MaxConnLifetime != 30*time.Minute {
		t.Errorf("MaxConnLifetime: ожидалось 30m, получено %v", poolCfg.MaxConnLifetime)
	}
	if poolCfg.ConnConfig.Host != "db.local" {
		t.Errorf("Host: ожидалось db.local, получено %q", poolCfg.ConnConfig.Host)
	}
	if poolCfg.ConnConfig.Database != "dispatch" {
		t.Errorf("Database: ожидалось dispatch, получено %q", poolCfg.ConnConfig.Database)
	}
}

func TestPoolConfigBadDSN(t *testing.T) {
	cfg := &config.Config{
		DBHost:    "db.local",
		DBPort:    5432,
		DBName:    "dispatch",
		DBUser:    "dispatch",
		DBSSLMode: "bogus mode",
	}

	if _, err := poolConfig(cfg); err == nil {
		t.Error("ожидалась ошибка для некорректного sslmode")
	}
}
