package config

import (
	"os"
	"sync"
)

var inContainer = sync.OnceValue(func() bool {
	// Docker creates /.dockerenv, podman /run/.containerenv.
	for _, marker := range []string{"/.dockerenv", "/run/.containerenv"} {
		if _, err := os.Stat(marker); err == nil {
			return true
		}
	}
	return false
})

// ResolveWarehouseHost rewrites loopback warehouse hosts when the engine
// itself runs inside a container. Operators routinely enter "localhost" on
// the settings page while the warehouse actually listens on the machine
// hosting the container; inside the container, loopback is the engine, so
// the connection must go through the host gateway instead.
func ResolveWarehouseHost(host string) string {
	return mapLoopback(host, inContainer())
}

func mapLoopback(host string, containerized bool) string {
	if !containerized {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}
