package app

import "testing"

func TestApplyRuntimeDefaultsGeneratesMissingSecrets(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}

	if cfg.Auth.JWT.Secret == "" {
		t.Fatal("expected JWT secret to be generated")
	}
	if cfg.Auth.JWT.Issuer != "bloggers" {
		t.Fatalf("expected default issuer, got %q", cfg.Auth.JWT.Issuer)
	}
	if !generated["auth.jwt.secret"] {
		t.Fatalf("expected generated map to include jwt secret: %#v", generated)
	}
}

func TestApplyRuntimeDefaultsPreservesExistingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = "configured-secret"
	cfg.Auth.JWT.Issuer = "blog"

	generated, err := ApplyRuntimeDefaults(cfg)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}
	if cfg.Auth.JWT.Secret != "configured-secret" {
		t.Fatalf("secret was overwritten: %q", cfg.Auth.JWT.Secret)
	}
	if len(generated) != 0 {
		t.Fatalf("expected nothing generated, got %#v", generated)
	}
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	if _, err := ApplyRuntimeDefaults(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
