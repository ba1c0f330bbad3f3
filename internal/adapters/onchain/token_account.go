package onchain

import (
	"encoding/binary"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/gagliardetto/solana-go"
)

// SPL token account layout: mint[0:32] owner[32:64] amount[64:72] (u64 LE) ...
const (
	TokenAccountSize = 165

	ownerOffset  = 32
	amountOffset = 64
)

// DecodeTokenAccount reads the owner and raw amount of an SPL token account.
func DecodeTokenAccount(data []byte) (domain.TokenAccount, bool) {
	if len(data) < amountOffset+8 {
		return domain.TokenAccount{}, false
	}
	owner := solana.PublicKeyFromBytes(data[ownerOffset:amountOffset])
	return domain.TokenAccount{
		Owner:  domain.Account(owner.String()),
		Amount: binary.LittleEndian.Uint64(data[amountOffset : amountOffset+8]),
	}, true
}
