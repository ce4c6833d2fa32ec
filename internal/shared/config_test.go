package shared

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "HTTP_ADDR", "BACKEND_BASE_URL", "CACHE_TTL_SECONDS", "SYNC_WORKERS", "SYNC_LISTING_IDS", "COOKIE_SECURE", "SESSION_MAX"} {
		t.Setenv(k, "")
	}
	c := Load()
	if c.AppEnv != "prod" || c.HTTPAddr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.BackendBase != "http://localhost:8000/api" {
		t.Fatalf("backend base: %s", c.BackendBase)
	}
	if c.CacheTTL != time.Minute || c.SyncWorkers != 4 {
		t.Fatalf("ttl/workers: %s %d", c.CacheTTL, c.SyncWorkers)
	}
	if c.CookieSecure {
		t.Fatalf("plain http default must not mark the cookie Secure")
	}
	if c.SessionMax != 10000 {
		t.Fatalf("session max: %d", c.SessionMax)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://reviews.example.com/api/")
	t.Setenv("CACHE_TTL_SECONDS", "5")
	t.Setenv("SYNC_WORKERS", "not-a-number")
	t.Setenv("SYNC_LISTING_IDS", "3, 9,x,-1,,12")
	t.Setenv("COOKIE_SECURE", "true")

	c := Load()
	if !c.CookieSecure {
		t.Fatalf("COOKIE_SECURE not applied")
	}
	if c.BackendBase != "https://reviews.example.com/api" {
		t.Fatalf("trailing slash not trimmed: %s", c.BackendBase)
	}
	if c.CacheTTL != 5*time.Second {
		t.Fatalf("ttl: %s", c.CacheTTL)
	}
	if c.SyncWorkers != 4 {
		t.Fatalf("bad int should fall back to default, got %d", c.SyncWorkers)
	}
	if len(c.SyncListingIDs) != 3 || c.SyncListingIDs[0] != 3 || c.SyncListingIDs[2] != 12 {
		t.Fatalf("ids: %v", c.SyncListingIDs)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "not a url")
	c := Load()
	if err := c.Validate(); err == nil {
		t.Fatalf("expected invalid backend url to fail")
	}

	t.Setenv("BACKEND_BASE_URL", "")
	t.Setenv("SYNC_WORKERS", "0")
	if err := Load().Validate(); err == nil {
		t.Fatalf("expected zero workers to fail")
	}
}
