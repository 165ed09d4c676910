package realtime

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// StartEmbeddedServer runs an in-process NATS server for single-node deployments.
// A negative port picks a random one.
func StartEmbeddedServer(host string, port int) (*natsserver.Server, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		server.Shutdown()
		return nil, fmt.Errorf("nats server not ready")
	}
	return server, nil
}
