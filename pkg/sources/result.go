package sources

// FetchResult describes the outcome of realizing one source. Commit is
// set only for Git sources and ContentHash only for file sources; the
// two are mutually exclusive by construction.
type FetchResult struct {
	ID            string
	Path          string
	Version       string
	VersionSource string
	Commit        string
	ContentHash   string
	Updated       bool
	Wrapped       bool
}
