package version

import (
	"strings"
	"testing"
)

func TestCurrent(t *testing.T) {
	b := Current()
	if b.Service != ServiceName {
		t.Fatalf("unexpected service %q", b.Service)
	}
	if b.Version == "" || b.Commit == "" || b.Date == "" {
		t.Fatalf("build info must be filled: %+v", b)
	}
	if b.Version != GetVersion() {
		t.Fatalf("GetVersion (%s) must match Current (%s)", GetVersion(), b.Version)
	}
}

func TestBuild_String(t *testing.T) {
	s := Build{Service: "retail-service", Version: "v1.2.0", Commit: "abc123", Date: "2026-03-01"}.String()
	for _, part := range []string{"retail-service v1.2.0", "commit=abc123", "date=2026-03-01"} {
		if !strings.Contains(s, part) {
			t.Errorf("%q must contain %q", s, part)
		}
	}
}

func TestBuild_Fields(t *testing.T) {
	fields := Build{Service: "retail-service", Version: "v1.2.0", Commit: "abc123", Date: "today"}.Fields()
	if fields["version"] != "v1.2.0" || fields["commit"] != "abc123" || fields["built"] != "today" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if fields["service"] != "retail-service" {
		t.Fatalf("service field is missing: %v", fields)
	}
}
