package identity

import (
	"time"

	"github.com/agoramesh/agora/pkg/execkey"
)

// KeyService mints execution keys for search results. Each key is signed
// with the owning provider's secret, recovered from its encrypted-at-rest
// form, so the agent can verify keys offline with the secret it already
// holds.
type KeyService struct {
	box    *SecretBox
	master []byte
}

// NewKeyService creates a KeyService bound to the registry master secret.
func NewKeyService(masterSecret string) *KeyService {
	return &KeyService{
		box:    NewSecretBox(masterSecret),
		master: []byte(masterSecret),
	}
}

// MintExecutionKey signs a five-minute execution key for the consumer to
// call the agent. storedSecret is the provider's encrypted secret as
// persisted at registration; when it is empty or cannot be decrypted the
// key is signed with the master secret instead, so a corrupt row never
// breaks search.
func (k *KeyService) MintExecutionKey(storedSecret, consumerCallerID, agentID string) (string, time.Time, error) {
	secret := k.master
	if storedSecret != "" {
		if plain, err := k.box.Decrypt(storedSecret); err == nil {
			secret = []byte(plain)
		}
	}
	return execkey.Mint(secret, consumerCallerID, agentID)
}
