package config

import (
	"os"
	"sync"
)

// dockerHostAlias reaches services published on the container host.
const dockerHostAlias = "host.docker.internal"

var containerMarkers = []string{"/.dockerenv", "/run/.containerenv"}

var (
	inContainerOnce sync.Once
	inContainer     bool

	// detectContainer is replaced in tests.
	detectContainer = func() bool {
		for _, marker := range containerMarkers {
			if _, err := os.Stat(marker); err == nil {
				return true
			}
		}
		return false
	}
)

// IsRunningInDocker reports whether the process runs inside a container.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	inContainerOnce.Do(func() {
		inContainer = detectContainer()
	})
	return inContainer
}

// ResolveHostForDocker rewrites loopback hosts to the container host alias when
// running inside a container, so a local PostgreSQL or Redis stays reachable.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, containerized bool) string {
	if !containerized {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return dockerHostAlias
	}
	return host
}
