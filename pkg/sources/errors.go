package sources

import "github.com/pkg/errors"

// Sentinel errors for the fetch backends. Callers match them with
// errors.Is after the backends wrap them with operation context.
var (
	// ErrSourceNotFound means a file source's path does not exist.
	ErrSourceNotFound = errors.New("source path not found")
	// ErrNotADirectory means a file source's path is not a directory.
	ErrNotADirectory = errors.New("source path is not a directory")
	// ErrCloneFailed means git clone exited non-zero.
	ErrCloneFailed = errors.New("git clone failed")
	// ErrFetchFailed means git fetch exited non-zero.
	ErrFetchFailed = errors.New("git fetch failed")
	// ErrPullFailed means git pull exited non-zero.
	ErrPullFailed = errors.New("git pull failed")
	// ErrPathNotFoundInRepo means the declared subdirectory is absent
	// from the cloned repository.
	ErrPathNotFoundInRepo = errors.New("path not found in repository")
)
