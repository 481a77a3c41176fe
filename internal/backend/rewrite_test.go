package backend

import "testing"

func TestRewriteFallsBackToCanonicalWhenNoMapping(t *testing.T) {
	table := RewriteTable{"foo:1": "registry.internal/foo:1"}
	if got := table.Rewrite("bar:1"); got != "bar:1" {
		t.Fatalf("got %q, want %q", got, "bar:1")
	}
}

func TestRewriteAppliesMapping(t *testing.T) {
	table := RewriteTable{"foo:1": "registry.internal/foo:1"}
	if got := table.Rewrite("foo:1"); got != "registry.internal/foo:1" {
		t.Fatalf("got %q, want %q", got, "registry.internal/foo:1")
	}
}

func TestRewriteNilTableIsNoOp(t *testing.T) {
	var table RewriteTable
	if got := table.Rewrite("foo:1"); got != "foo:1" {
		t.Fatalf("got %q, want %q", got, "foo:1")
	}
}

func TestSplitTagDefaultsToLatest(t *testing.T) {
	repo, tag := SplitTag("foo")
	if repo != "foo" || tag != "latest" {
		t.Fatalf("got (%q, %q), want (foo, latest)", repo, tag)
	}
}

func TestSplitTagExplicitTag(t *testing.T) {
	repo, tag := SplitTag("foo:v2")
	if repo != "foo" || tag != "v2" {
		t.Fatalf("got (%q, %q), want (foo, v2)", repo, tag)
	}
}

func TestSplitTagIgnoresPortInRegistryHost(t *testing.T) {
	repo, tag := SplitTag("host:5000/repo")
	if repo != "host:5000/repo" || tag != "latest" {
		t.Fatalf("got (%q, %q), want (host:5000/repo, latest)", repo, tag)
	}
}

func TestSplitTagWithRegistryHostAndTag(t *testing.T) {
	repo, tag := SplitTag("host:5000/repo:v3")
	if repo != "host:5000/repo" || tag != "v3" {
		t.Fatalf("got (%q, %q), want (host:5000/repo, v3)", repo, tag)
	}
}
