// Package fetch retrieves a precompiled extension artifact from a GitHub
// release, for source-less extensions (spec.md §3, "precompiled,
// source-less extension") that ship their native library as a release
// asset instead of being built locally.
package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v27/github"
	"github.com/google/renameio"
	"golang.org/x/oauth2"
	"golang.org/x/xerrors"
)

// Fetcher downloads release assets from a single GitHub repository.
type Fetcher struct {
	client *github.Client
	owner  string
	repo   string
}

// New returns a Fetcher for the GitHub repository identified by repoURL
// (e.g. "https://github.com/eeks-rt/contrib-extensions"). If token is
// non-empty it is used as an oauth2 access token, otherwise requests are
// made unauthenticated and are subject to GitHub's anonymous rate limit.
func New(ctx context.Context, repoURL, token string) (*Fetcher, error) {
	owner, repo, err := splitRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	hc := http.DefaultClient
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}
	return &Fetcher{client: github.NewClient(hc), owner: owner, repo: repo}, nil
}

func splitRepoURL(repoURL string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimPrefix(repoURL, "https://github.com/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", xerrors.Errorf("fetch: %q is not a github.com/owner/repo URL", repoURL)
	}
	return parts[0], parts[1], nil
}

// Fetch downloads the release asset named assetName from the release
// tagged tag, writing it atomically to dest, and returns dest.
func (f *Fetcher) Fetch(ctx context.Context, tag, assetName, dest string) (string, error) {
	release, _, err := f.client.Repositories.GetReleaseByTag(ctx, f.owner, f.repo, tag)
	if err != nil {
		return "", xerrors.Errorf("fetch %s/%s@%s: %w", f.owner, f.repo, tag, err)
	}

	var assetID int64
	found := false
	for _, a := range release.Assets {
		if a.GetName() == assetName {
			assetID, found = a.GetID(), true
			break
		}
	}
	if !found {
		return "", xerrors.Errorf("fetch %s/%s@%s: no release asset named %q", f.owner, f.repo, tag, assetName)
	}

	rc, _, err := f.client.Repositories.DownloadReleaseAsset(ctx, f.owner, f.repo, assetID)
	if err != nil {
		return "", xerrors.Errorf("download asset %q: %w", assetName, err)
	}
	defer rc.Close()

	out, err := renameio.TempFile("", dest)
	if err != nil {
		return "", xerrors.Errorf("fetch %s: %w", assetName, err)
	}
	defer out.Cleanup()

	if _, err := io.Copy(out, rc); err != nil {
		return "", xerrors.Errorf("fetch %s: %w", assetName, err)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return "", xerrors.Errorf("fetch %s: %w", assetName, err)
	}
	return dest, nil
}

// FetchIfNewer downloads the release asset named assetName from the
// release tagged tag only if dest is missing or older than the asset's
// last update on GitHub, otherwise it leaves dest untouched. fetched
// reports whether a download actually happened.
func (f *Fetcher) FetchIfNewer(ctx context.Context, tag, assetName, dest string) (path string, fetched bool, err error) {
	release, _, err := f.client.Repositories.GetReleaseByTag(ctx, f.owner, f.repo, tag)
	if err != nil {
		return "", false, xerrors.Errorf("fetch %s/%s@%s: %w", f.owner, f.repo, tag, err)
	}

	var asset *github.ReleaseAsset
	for i, a := range release.Assets {
		if a.GetName() == assetName {
			asset = &release.Assets[i]
			break
		}
	}
	if asset == nil {
		return "", false, xerrors.Errorf("fetch %s/%s@%s: no release asset named %q", f.owner, f.repo, tag, assetName)
	}

	info, statErr := os.Stat(dest)
	if statErr != nil && !os.IsNotExist(statErr) {
		return "", false, xerrors.Errorf("stat %s: %w", dest, statErr)
	}
	if statErr == nil && !needsFetch(info.ModTime(), asset.GetUpdatedAt().Time) {
		return dest, false, nil
	}

	path, err = f.Fetch(ctx, tag, assetName, dest)
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

// needsFetch reports whether a release asset last updated at remoteUpdatedAt
// is newer than the local file's localModTime, i.e. whether dest is stale
// and should be re-downloaded.
func needsFetch(localModTime, remoteUpdatedAt time.Time) bool {
	return remoteUpdatedAt.After(localModTime)
}
