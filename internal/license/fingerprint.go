package license

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Fingerprint source files, in priority order. /host-machine-id is the
// conventional bind-mount target when the worker runs in a container.
var machineIDPaths = []string{"/host-machine-id", "/etc/machine-id"}

// Fingerprint derives a stable identity for this server as a lowercase hex
// sha256. It prefers the host machine-id; when no machine-id file is
// readable it falls back to a hash of hostname, platform, architecture,
// and the first CPU model.
func Fingerprint() (string, error) {
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		id := strings.TrimSpace(string(data))
		if id != "" {
			return hashHex(id), nil
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	composite := fmt.Sprintf("%s|%s|%s|%s", hostname, runtime.GOOS, runtime.GOARCH, firstCPUModel())
	return hashHex(composite), nil
}

// firstCPUModel returns the model name of the first CPU from /proc/cpuinfo,
// or an empty string on platforms without it.
func firstCPUModel() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "model name") {
			continue
		}
		if _, value, found := strings.Cut(line, ":"); found {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
