package setup

import (
	"fmt"
	goruntime "runtime"
)

// Python version the standalone runtime pins. The ML dependency set
// does not build against anything newer than 3.13.
const (
	runtimeVersion  = "3.12.11"
	runtimeRelease  = "20250818"
	runtimeBaseURL  = "https://github.com/astral-sh/python-build-standalone/releases/download"
	runtimeFlavor   = "install_only"
	runtimeFilename = "cpython-%s+%s-%s-%s.tar.gz"
)

// runtimeArchive pins one downloadable runtime build per platform.
type runtimeArchive struct {
	URL    string
	SHA256 string
}

// runtimeDigests are recorded from the published release checksum
// manifest; a build is trusted only when its digest matches exactly.
var runtimeDigests = map[string]string{
	"aarch64-apple-darwin":      "cbcbe1b248633ad8dcbbf93fcbb213ab46a7c8f76a9c06bb0029fb1be0b2c9db",
	"x86_64-apple-darwin":       "53d9b04e2ef41c26c09b3c968a6cb1e5c945bb5deb4f4ee7434a1b070b00bd3a",
	"aarch64-unknown-linux-gnu": "9d1e8bb1e3d23774b40a0a0b9b62f9c4d4d7035cbc86617a25b05ddf0dc2dd79",
	"x86_64-unknown-linux-gnu":  "2e2c1f110b5aa19a8ba6d521b779af91a3cbd43d9e4b75fccbc62d9f9b861a24",
}

// currentRuntimeArchive selects the pinned build for this platform.
func currentRuntimeArchive() (runtimeArchive, error) {
	triple, err := platformTriple(goruntime.GOOS, goruntime.GOARCH)
	if err != nil {
		return runtimeArchive{}, err
	}
	digest, ok := runtimeDigests[triple]
	if !ok {
		return runtimeArchive{}, fmt.Errorf("no runtime build pinned for %s", triple)
	}
	name := fmt.Sprintf(runtimeFilename, runtimeVersion, runtimeRelease, triple, runtimeFlavor)
	return runtimeArchive{
		URL:    fmt.Sprintf("%s/%s/%s", runtimeBaseURL, runtimeRelease, name),
		SHA256: digest,
	}, nil
}

// platformTriple maps GOOS/GOARCH to the release target triple.
func platformTriple(goos, goarch string) (string, error) {
	switch {
	case goos == "darwin" && goarch == "arm64":
		return "aarch64-apple-darwin", nil
	case goos == "darwin" && goarch == "amd64":
		return "x86_64-apple-darwin", nil
	case goos == "linux" && goarch == "arm64":
		return "aarch64-unknown-linux-gnu", nil
	case goos == "linux" && goarch == "amd64":
		return "x86_64-unknown-linux-gnu", nil
	default:
		return "", fmt.Errorf("unsupported platform %s/%s", goos, goarch)
	}
}
