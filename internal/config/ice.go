package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// BuildICEServers turns the configured STUN and TURN url lists into the
// RTCIceServer entries clients pass to their peer connections. Entries that
// arrive as a single comma separated string (env vars) are split.
func BuildICEServers(stunURLs, turnURLs []string, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	stunList, err := collectURLs(stunURLs, "stun:", "stuns:")
	if err != nil {
		return nil, fmt.Errorf("ice.stun_urls: %w", err)
	}
	turnList, err := collectURLs(turnURLs, "turn:", "turns:")
	if err != nil {
		return nil, fmt.Errorf("ice.turn_urls: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, 2)
	if len(stunList) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stunList})
	}

	if len(turnList) > 0 {
		turnUsername = strings.TrimSpace(turnUsername)
		turnCredential = strings.TrimSpace(turnCredential)
		if turnUsername == "" || turnCredential == "" {
			return nil, errors.New("ice.turn_username/ice.turn_credential: both must be set when ice.turn_urls is set")
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       turnList,
			Username:   turnUsername,
			Credential: turnCredential,
		})
	}

	return servers, nil
}

// collectURLs splits comma separated values, drops blanks and rejects any url
// whose scheme is not one of schemes.
func collectURLs(values []string, schemes ...string) ([]string, error) {
	var out []string
	for _, value := range values {
		for _, url := range strings.Split(value, ",") {
			url = strings.TrimSpace(url)
			if url == "" {
				continue
			}
			if !hasAnyPrefix(url, schemes) {
				return nil, fmt.Errorf("url %q must start with one of %s", url, strings.Join(schemes, ", "))
			}
			out = append(out, url)
		}
	}
	return out, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
