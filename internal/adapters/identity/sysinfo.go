package identity

import (
	"net"
	"os"
	"os/user"
	"runtime"
	"time"
)

const unknown = "UNKNOWN"

// SystemInfo is the host snapshot logged at start and sent with the session.
type SystemInfo struct {
	OSName    string    `json:"os_name"`
	Machine   string    `json:"machine"`
	Hostname  string    `json:"hostname"`
	Username  string    `json:"username"`
	IPAddress string    `json:"ip_address"`
	Timestamp time.Time `json:"timestamp"`
}

// Collect gathers SystemInfo without contacting external hosts.
func Collect() SystemInfo {
	info := SystemInfo{
		OSName:    runtime.GOOS,
		Machine:   runtime.GOARCH,
		Hostname:  Hostname(),
		Username:  unknown,
		IPAddress: unknown,
		Timestamp: time.Now().UTC(),
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		info.Username = u.Username
	}
	if ip := localIP(info.Hostname); ip != "" {
		info.IPAddress = ip
	}
	return info
}

// Hostname returns the host name or UNKNOWN.
func Hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return unknown
}

// localIP resolves the hostname and prefers a non-loopback IPv4 address.
func localIP(hostname string) string {
	addrs, err := net.LookupHost(hostname)
	if err != nil {
		return ""
	}
	fallback := ""
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if ip.To4() != nil && !ip.IsLoopback() {
			return a
		}
		if fallback == "" {
			fallback = a
		}
	}
	return fallback
}
