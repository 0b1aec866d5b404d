//go:build !unix

package acceptor

import "net"

func listenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
