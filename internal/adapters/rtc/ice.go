// Package rtc hands WebRTC configuration to clients. The server never
// terminates media; peers connect to each other directly.
package rtc

import (
	"fmt"

	"github.com/dkeye/meshcall/internal/config"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// ICEServers converts the configured servers, falling back to a public STUN
// server when none are set. Every URL must parse as a stun/turn URI.
func ICEServers(servers []config.ICEServer) ([]webrtc.ICEServer, error) {
	if len(servers) == 0 {
		return defaultICEServers, nil
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, s := range servers {
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("ice_servers[%d]: no urls", i)
		}
		for _, raw := range s.URLs {
			uri, err := stun.ParseURI(raw)
			if err != nil {
				return nil, fmt.Errorf("ice_servers[%d]: %q: %w", i, raw, err)
			}
			if (uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS) && s.Username == "" {
				return nil, fmt.Errorf("ice_servers[%d]: turn server %q needs a username", i, raw)
			}
		}
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return out, nil
}

// ClientConfig is what /api/ice-servers returns to browsers.
func ClientConfig(servers []webrtc.ICEServer) webrtc.Configuration {
	return webrtc.Configuration{ICEServers: servers}
}
