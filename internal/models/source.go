package models

// RepoSnapshot is an immutable reference to a fetched working tree.
type RepoSnapshot struct {
	Path      string // absolute path to the working tree root
	Branch    string
	CommitID  string // HEAD commit of the fetched tree (git rev-parse HEAD)
	OriginURL string
	InputRoot string // subfolder within the tree used as the vault root
}

// SourceFetchRequest is the input to SourceFetcher.Fetch.
type SourceFetchRequest struct {
	URL     string
	Branch  string
	Depth   int // 0 means "use default shallow depth of 1"
	Shallow bool
	Commit  string // checked out after the clone whenever non-empty (Shallow is not consulted)
	Subpath string // optional subfolder within the tree used as the vault root
}
