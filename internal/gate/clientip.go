package gate

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

// Forwarding headers checked in priority order. The first acceptable
// address found wins.
var ipHeaders = []string{
	"x-forwarded-for",
	"x-real-ip",
	"cf-connecting-ip",
	"true-client-ip",
	"x-vercel-forwarded-for",
}

// Compiled once at init; cheap prefilter before net.ParseIP does the real
// validation.
var ipLiteralPattern = regexp.MustCompile(`^(?:\d{1,3}(?:\.\d{1,3}){3}|[0-9a-fA-F:]+)$`)

// fallbackIP is returned when no forwarding header yields an acceptable
// address.
const fallbackIP = "127.0.0.1"

// ResolveClientIP walks the forwarding headers and returns the first value
// that parses as an IP literal. Private, loopback and link-local ranges are
// rejected unless allowPrivate is set.
func ResolveClientIP(header http.Header, allowPrivate bool) string {
	for _, name := range ipHeaders {
		value := header.Get(name)
		if value == "" {
			continue
		}
		for _, candidate := range strings.Split(value, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == "" || !ipLiteralPattern.MatchString(candidate) {
				continue
			}
			ip := net.ParseIP(candidate)
			if ip == nil {
				continue
			}
			if !allowPrivate && isPrivate(ip) {
				continue
			}
			return candidate
		}
	}
	return fallbackIP
}

func isPrivate(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
