// Package clientip extracts the origin address used for rate limiting
// and audit records.
package clientip

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

var privateNets []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid CIDR: " + cidr)
		}
		privateNets = append(privateNets, block)
	}
}

func isPrivate(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, block := range privateNets {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func normalize(ip string) string {
	ip = strings.TrimSpace(ip)
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}

// Get extracts the client's origin address from a gin request,
// preferring well-known reverse-proxy headers over the raw socket peer.
//
// Priority: CF-Connecting-IP, X-Real-IP, first public hop of
// X-Forwarded-For, then gin's own ClientIP.
func Get(c *gin.Context) string {
	if ip := c.GetHeader("CF-Connecting-IP"); ip != "" {
		return normalize(ip)
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return normalize(ip)
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for _, hop := range hops {
			hop = strings.TrimSpace(hop)
			if hop != "" && !isPrivate(hop) {
				return normalize(hop)
			}
		}
		if len(hops) > 0 {
			return normalize(strings.TrimSpace(hops[0]))
		}
	}
	return normalize(c.ClientIP())
}
