package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("ENV")
	os.Unsetenv("JWT_SECRET")

	cfg, err := FromViper(newViper())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Env != EnvLocal || cfg.Port != "8080" {
		t.Errorf("env/port = %s/%s", cfg.Env, cfg.Port)
	}
	if cfg.TokenTTL != 168*time.Hour {
		t.Errorf("ttl = %v", cfg.TokenTTL)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("bcrypt cost = %d", cfg.BcryptCost)
	}
	if cfg.JWTSecret == "" {
		t.Error("local env should fall back to a dev secret")
	}
}

func TestProdRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("JWT_SECRET", "")

	_, err := FromViper(newViper())
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("DEBUG", "true")

	cfg, err := FromViper(newViper())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TokenTTL != 2*time.Hour || cfg.BcryptCost != 10 || !cfg.Debug {
		t.Errorf("cfg = %+v", cfg)
	}
	if strings.Contains(cfg.String(), "s3cret") {
		t.Error("String() leaked the secret")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("UPLOAD_DIR=/tmp/taskdesk-uploads\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("UPLOAD_DIR", "")
	os.Unsetenv("UPLOAD_DIR")
	t.Setenv("ENV", "local")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UploadDir != "/tmp/taskdesk-uploads" {
		t.Errorf("upload dir = %q", cfg.UploadDir)
	}
}

func TestRejectsUnknownEnv(t *testing.T) {
	t.Setenv("ENV", "staging")
	if _, err := FromViper(newViper()); err == nil {
		t.Fatal("expected error for unknown ENV")
	}
}
