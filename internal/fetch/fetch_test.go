package fetch

import (
	"testing"
	"time"
)

func TestSplitRepoURL(t *testing.T) {
	owner, repo, err := splitRepoURL("https://github.com/eeks-rt/contrib-extensions")
	if err != nil {
		t.Fatal(err)
	}
	if owner != "eeks-rt" || repo != "contrib-extensions" {
		t.Fatalf("splitRepoURL = (%q, %q), want (%q, %q)", owner, repo, "eeks-rt", "contrib-extensions")
	}
}

func TestSplitRepoURLRejectsMalformed(t *testing.T) {
	for _, u := range []string{
		"https://github.com/eeks-rt",
		"https://gitlab.com/eeks-rt/contrib-extensions",
		"",
	} {
		if _, _, err := splitRepoURL(u); err == nil {
			t.Fatalf("splitRepoURL(%q) succeeded, want an error", u)
		}
	}
}

func TestNeedsFetch(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	if needsFetch(base, base.Add(-time.Second)) {
		t.Fatal("needsFetch(older remote) = true, want false")
	}
	if needsFetch(base, base) {
		t.Fatal("needsFetch(same-age remote) = true, want false")
	}
	if !needsFetch(base, base.Add(time.Second)) {
		t.Fatal("needsFetch(newer remote) = false, want true")
	}
}
