package uiutil

import "hash/fnv"

const (
	AnsiReset = "\033[0m"
	AnsiDim   = "\033[2m"
	AnsiBold  = "\033[1m"
)

var peerPalette = [...]string{
	"\033[31m",
	"\033[32m",
	"\033[33m",
	"\033[34m",
	"\033[35m",
	"\033[36m",
}

// ShortID trims a peer ID for display. Ed25519 peer IDs share a common
// prefix, so the tail is kept.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

// PeerColor maps id to a stable terminal color.
func PeerColor(id string) string {
	if id == "" {
		return AnsiReset
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	return peerPalette[h.Sum32()%uint32(len(peerPalette))]
}

// PeerLabel renders the short form of id in its color.
func PeerLabel(id string) string {
	if id == "" {
		return "?"
	}
	return PeerColor(id) + ShortID(id) + AnsiReset
}
