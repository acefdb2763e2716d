package p2p

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/crypto/curve25519"

	"recipe-swap/internal/proto"
)

// staticKeyPrefix is prepended to the Noise static key before it is
// signed with the identity key.
const staticKeyPrefix = "noise-libp2p-static-key:"

var errBadIdentitySig = errors.New("identity signature does not cover noise static key")

type Identity struct {
	Priv crypto.PrivKey
	Pub  crypto.PubKey
	ID   peer.ID

	NoisePriv [32]byte
	NoisePub  [32]byte
}

// NewIdentity generates a fresh Ed25519 identity and an X25519 static key
// for the Noise handshake.
func NewIdentity() (*Identity, error) {
	return newIdentity(rand.Reader)
}

func newIdentity(r io.Reader) (*Identity, error) {
	priv, pub, err := crypto.GenerateEd25519Key(r)
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("derive peer id: %w", err)
	}

	ident := &Identity{Priv: priv, Pub: pub, ID: id}
	if _, err := io.ReadFull(r, ident.NoisePriv[:]); err != nil {
		return nil, fmt.Errorf("generate noise key: %w", err)
	}
	noisePub, err := curve25519.X25519(ident.NoisePriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive noise key: %w", err)
	}
	copy(ident.NoisePub[:], noisePub)
	return ident, nil
}

// handshakePayload binds the Noise static key to the identity key.
func (id *Identity) handshakePayload() ([]byte, error) {
	keyBytes, err := crypto.MarshalPublicKey(id.Pub)
	if err != nil {
		return nil, err
	}
	sig, err := id.Priv.Sign(append([]byte(staticKeyPrefix), id.NoisePub[:]...))
	if err != nil {
		return nil, err
	}
	return json.Marshal(proto.NoiseIdentityPayload{
		IdentityKey: keyBytes,
		IdentitySig: sig,
	})
}

// peerFromHandshake checks the remote payload and returns the peer id it
// proves ownership of.
func peerFromHandshake(remoteStatic, payload []byte) (peer.ID, error) {
	var ip proto.NoiseIdentityPayload
	if err := json.Unmarshal(payload, &ip); err != nil {
		return "", fmt.Errorf("decode identity payload: %w", err)
	}
	pub, err := crypto.UnmarshalPublicKey(ip.IdentityKey)
	if err != nil {
		return "", fmt.Errorf("decode identity key: %w", err)
	}
	ok, err := pub.Verify(append([]byte(staticKeyPrefix), remoteStatic...), ip.IdentitySig)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errBadIdentitySig
	}
	return peer.IDFromPublicKey(pub)
}
