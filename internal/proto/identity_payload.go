package proto

// NoiseIdentityPayload is sent inside the Noise handshake payload.
// It binds the node's identity key to its Noise static key.
type NoiseIdentityPayload struct {
	IdentityKey []byte `json:"identity_key"` // libp2p-marshalled public key
	IdentitySig []byte `json:"identity_sig"` // signature over the noise static key
}
