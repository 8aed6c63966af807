package driver

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"
)

const (
	portSSH    int32 = 22
	portWinRM  int32 = 5985
	portWinRMS int32 = 5986
)

// tcpTransport is the default connectivity confirmation: wait for the
// login port to accept a TCP connection. Real session setup is the host
// harness's job.
type tcpTransport struct {
	port int32
}

var dialer = &net.Dialer{
	Timeout: 3 * time.Second,
}

func (t *tcpTransport) Confirm(ctx context.Context, hostname string) error {
	log := clog.FromContext(ctx).With("host", hostname, "port", t.port)
	target := net.JoinHostPort(hostname, strconv.Itoa(int(t.port)))
	for {
		select {
		case <-ctx.Done():
			log.Debug("hit deadline waiting for the instance login port")
			return ctx.Err()
		case <-time.After(time.Second):
			if tcpPortOpen(ctx, target) {
				log.Debug("login port is reachable")
				return nil
			}
		}
	}
}

// Close is a no-op: the TCP transport holds no connection.
func (t *tcpTransport) Close(context.Context, string) error {
	return nil
}

func tcpPortOpen(ctx context.Context, target string) bool {
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
