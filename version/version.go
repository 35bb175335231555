package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = GLINTDVersionDefault
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// GLINTDVersionDefault is the used as the fallback version of the Glint
	// light client daemon when not using git describe. It is formatted with
	// semantic versioning.
	GLINTDVersionDefault = "0.3.0"

	// BlockProtocol versions all block data structures and processing.
	BlockProtocol Protocol = 10
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

// Consensus captures the consensus rules for processing a block in the
// blockchain, including all blockchain data structures and the rules of the
// application's state transition machine.
type Consensus struct {
	Block Protocol `json:"block"`
	App   Protocol `json:"app"`
}
