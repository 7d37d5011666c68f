package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidateListsAllMissingCredentials(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for empty credentials")
	}
	for _, name := range []string{"TWITTER_APP_KEY", "TWITTER_ACCESS_SECRET", "OPENAI_API_KEY"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q missing %s", err, name)
		}
	}

	cfg.Credentials = CredentialsConfig{ConsumerKey: "a", ConsumerSecret: "b", AccessToken: "c", AccessSecret: "d"}
	cfg.Providers.OpenAIAPIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bot.PollInterval != time.Hour || cfg.Bot.BatchSize != 5 {
		t.Fatalf("defaults not applied: %+v", cfg.Bot)
	}
	if cfg.Bot.RateLimitWait != 15*time.Minute {
		t.Fatalf("rate limit wait default: %v", cfg.Bot.RateLimitWait)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memebot.yaml")
	cfg := Default()
	cfg.Credentials.ConsumerKey = "ck"
	cfg.Storage.DBPath = "/tmp/x.db"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Credentials.ConsumerKey != "ck" || got.Storage.DBPath != "/tmp/x.db" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}
