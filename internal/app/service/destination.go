package service

import (
	"errors"
	"strings"
)

// DestinationKind classifies the target of a protected link. The string
// heuristics that distinguish the variants live only here; business logic
// switches on the tag.
type DestinationKind int

const (
	// KindPublic is a public group/channel addressed by username,
	// e.g. https://t.me/somegroup.
	KindPublic DestinationKind = iota
	// KindInvite is a private invite-style link,
	// e.g. https://t.me/+AbCdEf or https://t.me/joinchat/AbCdEf.
	KindInvite
)

// Destination is the parsed form of a protected link's target URI.
type Destination struct {
	Kind DestinationKind
	// Username for KindPublic, invite hash for KindInvite.
	Identifier string
	URI        string
}

// ErrInvalidDestination signals a target URI outside the allow-listed
// destination scheme.
var ErrInvalidDestination = errors.New("destination must be an https://t.me/ link")

const destinationPrefix = "https://t.me/"

// ParseDestination validates and classifies a destination URI.
func ParseDestination(uri string) (Destination, error) {
	if !strings.HasPrefix(uri, destinationPrefix) {
		return Destination{}, ErrInvalidDestination
	}

	rest := strings.TrimPrefix(uri, destinationPrefix)
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return Destination{}, ErrInvalidDestination
	}

	if hash, ok := strings.CutPrefix(rest, "+"); ok {
		if hash == "" {
			return Destination{}, ErrInvalidDestination
		}
		return Destination{Kind: KindInvite, Identifier: hash, URI: uri}, nil
	}
	if hash, ok := strings.CutPrefix(rest, "joinchat/"); ok {
		if hash == "" || strings.Contains(hash, "/") {
			return Destination{}, ErrInvalidDestination
		}
		return Destination{Kind: KindInvite, Identifier: hash, URI: uri}, nil
	}

	if strings.Contains(rest, "/") || strings.Contains(rest, "?") {
		return Destination{}, ErrInvalidDestination
	}
	return Destination{Kind: KindPublic, Identifier: rest, URI: uri}, nil
}
