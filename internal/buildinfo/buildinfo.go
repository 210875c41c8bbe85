package buildinfo

// Set with -ldflags "-X github.com/trackwise/edgeauth/internal/buildinfo.Version=..."
var (
	Version    = "1.0.0"
	CommitHash = "unknown"
)

type Info struct {
	Service    string `json:"service,omitempty"`
	Version    string `json:"version,omitempty"`
	CommitHash string `json:"commit_hash,omitempty"`
}

func GetBuildInfo(service string) Info {
	return Info{
		Service:    service,
		Version:    Version,
		CommitHash: CommitHash,
	}
}
