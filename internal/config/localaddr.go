package config

import "net"

// LocalIPv4 returns the local IPv4 address that would be used to reach
// the public internet, by opening a UDP "connection" (no packet is
// actually sent for a UDP socket) to a well-known address and reading
// back the socket's local endpoint. Used only to annotate a client's
// own log lines with which interface it bound from; it is never placed
// on the wire.
func LocalIPv4() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr := conn.LocalAddr().(*net.UDPAddr)
	return addr.IP.String(), nil
}
