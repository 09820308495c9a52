package version

// Flag marks development builds. Release builds leave it empty.
const Flag = ""

// Protocol identifies the consensus rules: vote counting, timestamp median,
// tie-break order and minimum timestamp increment. Nodes with different
// protocol versions may disagree on the consensus order.
const Protocol = 1

var (
	// Version is the full version string.
	Version = "0.1.0"

	// GitCommit is set with
	// --ldflags "-X github.com/mosaicnetworks/swirl/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}

	if len(GitCommit) >= 8 {
		Version += "-" + GitCommit[:8]
	}
}
