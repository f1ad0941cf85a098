package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// RealIP returns the client address, preferring proxy headers over the
// socket address.
func RealIP(r *http.Request) string {
	for _, h := range []string{"Fly-Client-IP", "X-Real-IP"} {
		if ip := strings.TrimSpace(r.Header.Get(h)); ip != "" {
			return ip
		}
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipList matches addresses against single IPs and CIDR ranges.
type ipList struct {
	ips  map[string]bool
	nets []*net.IPNet
}

func parseIPList(entries []string, logger zerolog.Logger) ipList {
	l := ipList{ips: make(map[string]bool)}
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			l.ips[entry] = true
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		l.nets = append(l.nets, n)
	}
	return l
}

func (l ipList) empty() bool {
	return len(l.ips) == 0 && len(l.nets) == 0
}

func (l ipList) contains(addr string) bool {
	if l.ips[addr] {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
