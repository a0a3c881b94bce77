package sources

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/omnihq/omni/pkg/hashdir"
)

// FileFetcher realizes file:// sources by copying a local directory.
// Change detection compares the source tree's content hash against the
// hash the lock file recorded, so an unchanged source is never recopied.
type FileFetcher struct {
	hasher *hashdir.Hasher
}

// NewFileFetcher creates a FileFetcher. A nil hasher defaults to the
// standard exclude set.
func NewFileFetcher(hasher *hashdir.Hasher) *FileFetcher {
	if hasher == nil {
		hasher = hashdir.New()
	}
	return &FileFetcher{hasher: hasher}
}

// Fetch realizes a file source into target. prevHash is the content hash
// recorded by the lock file for this capability.
func (f *FileFetcher) Fetch(ctx context.Context, id string, cfg *Config, target, prevHash string) (*FetchResult, error) {
	src := cfg.LocalPath()

	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrSourceNotFound, src)
		}
		return nil, errors.Wrapf(err, "failed to stat %s", src)
	}
	if !info.IsDir() {
		return nil, errors.Wrap(ErrNotADirectory, src)
	}

	hash, err := f.hasher.Hash(src)
	if err != nil {
		return nil, err
	}

	updated := hash != prevHash || !dirExists(target)
	if updated {
		if err := os.RemoveAll(target); err != nil {
			return nil, errors.Wrapf(err, "failed to clear %s", target)
		}
		if err := copyTree(src, target); err != nil {
			return nil, err
		}
	}

	return &FetchResult{
		ID:          id,
		Path:        target,
		ContentHash: hash,
		Updated:     updated,
	}, nil
}

// Hasher exposes the fetcher's tree hasher for integrity verification.
func (f *FileFetcher) Hasher() *hashdir.Hasher {
	return f.hasher
}
