// Package testingh starts throwaway Redpanda and ClickHouse servers in
// docker for the integration suites.
package testingh

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/ory/dockertest"
	"github.com/ory/dockertest/docker"
)

const (
	redpandaPort   = "9092/tcp"
	clickhousePort = "9000/tcp"
)

// hostName can be overridden when docker runs on another host.
func hostName() string {
	if h := os.Getenv("OVERRIDE_HOSTNAME"); h != "" {
		return h
	}
	return "localhost"
}

// ConnectFn is retried until it succeeds or the pool gives up.
type ConnectFn func(addr string) error

type Container struct {
	resource *dockertest.Resource
}

func (c *Container) Purge() error {
	return c.resource.Close()
}

// Redpanda starts a single node broker advertising a free host port.
func Redpanda(connectFn ConnectFn) (*Container, error) {
	return start("redpanda", redpandaPort, func(host string, hostPort int) *dockertest.RunOptions {
		return &dockertest.RunOptions{
			Repository: "redpandadata/redpanda",
			Tag:        "latest",
			Auth: docker.AuthConfiguration{
				Username: os.Getenv("ARTIFACTORY_USER"),
				Password: os.Getenv("ARTIFACTORY_PWD"),
			},
			Cmd: []string{
				"redpanda start",
				"--overprovisioned",
				"--smp 1",
				"--memory 1G",
				"--reserve-memory 0M",
				"--node-id 0",
				"--check=false",
				fmt.Sprintf("--advertise-kafka-addr %s:%d", host, hostPort),
			},
		}
	}, connectFn)
}

// Clickhouse starts a server with db created and owned by user.
func Clickhouse(db, user, password string, connectFn ConnectFn) (*Container, error) {
	return start("clickhouse", clickhousePort, func(string, int) *dockertest.RunOptions {
		return &dockertest.RunOptions{
			Repository: "clickhouse/clickhouse-server",
			Tag:        "latest-alpine",
			Env: []string{
				"CLICKHOUSE_DB=" + db,
				"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT=1",
				"CLICKHOUSE_USER=" + user,
				"CLICKHOUSE_PASSWORD=" + password,
			},
		}
	}, connectFn)
}

func start(
	name, containerPort string,
	options func(host string, hostPort int) *dockertest.RunOptions,
	connectFn ConnectFn,
) (*Container, error) {
	host := hostName()
	hostPort, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("%s: free host port: %w", name, err)
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("%s: connect to docker: %w", name, err)
	}

	opts := options(host, hostPort)
	opts.PortBindings = map[docker.Port][]docker.PortBinding{
		docker.Port(containerPort): {{
			HostIP:   host,
			HostPort: strconv.Itoa(hostPort),
		}},
	}
	resource, err := pool.RunWithOptions(opts, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: create container: %w", name, err)
	}

	addr := fmt.Sprintf("%s:%s", host, resource.GetPort(containerPort))
	// servers accept connections some time after the container is up
	if err = pool.Retry(func() error { return connectFn(addr) }); err != nil {
		_ = resource.Close()
		return nil, fmt.Errorf("%s: connect: %w", name, err)
	}

	return &Container{resource: resource}, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
