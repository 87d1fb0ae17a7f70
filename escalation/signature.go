package escalation

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/heirloom/interfaces"
)

// ResponseMessage is the text an owner signs to respond to an escalation.
func ResponseMessage(entityID string) string {
	return "heirloom:respond:" + entityID
}

// VerifyResponseSignature checks a 65-byte personal_sign (EIP-191) signature
// of ResponseMessage(entityID) against wallet. Both v=0/1 and v=27/28 are
// accepted.
func VerifyResponseSignature(entityID string, signature []byte, wallet interfaces.WalletAddress) error {
	if wallet.IsZero() {
		return fmt.Errorf("%w: no wallet registered", interfaces.ErrInvalidSignature)
	}
	if len(signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: expected %d bytes, got %d", interfaces.ErrInvalidSignature, crypto.SignatureLength, len(signature))
	}

	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(ResponseMessage(entityID)))
	pubkey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidSignature, err)
	}

	if interfaces.WalletAddress(crypto.PubkeyToAddress(*pubkey)) != wallet {
		return fmt.Errorf("%w: signer does not match registered wallet", interfaces.ErrInvalidSignature)
	}
	return nil
}
