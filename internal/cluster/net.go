package cluster

import (
	"net"
	"os"
	"strconv"
)

// Hostname returns the address partition servers advertise to the
// coordinator. Falls back to the loopback address when the OS hostname
// is unavailable.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "127.0.0.1"
	}
	return h
}

// FreePort asks the kernel for an open TCP port and releases it again.
// There is an unavoidable race between releasing and rebinding the
// port; prefer binding ":0" directly where possible.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
