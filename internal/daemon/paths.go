package daemon

import (
	"path/filepath"
)

func runDir(home string) string {
	return filepath.Join(home, "run")
}

func pidPath(home string) string {
	return filepath.Join(runDir(home), "plexify.pid")
}

func lockPath(home string) string {
	return filepath.Join(runDir(home), "plexify.lock")
}

func addrPath(home string) string {
	return filepath.Join(runDir(home), "http.addr")
}

func grpcAddrPath(home string) string {
	return filepath.Join(runDir(home), "grpc.addr")
}

// LogPath is where a background daemon writes its log.
func LogPath(home string) string {
	return filepath.Join(runDir(home), "plexify.log")
}
