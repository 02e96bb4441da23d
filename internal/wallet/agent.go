package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest describes a state-changing call for the signing agent to
// authorize, sign, and submit. Gas fields are zero unless the caller
// wants to pin them; agents fill in whatever is missing.
type TxRequest struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// SigningAgent is the external capability that holds key material and
// authorizes operations on behalf of the user. Implementations must
// return fault-coded errors (fault.CodeAuthorizationDenied when the
// user declines, fault.CodeNetwork for transport failures).
type SigningAgent interface {
	// RequestAccounts asks the agent for the authorized account set,
	// prompting the user if necessary.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// ChainID reports the network the agent is currently attached to.
	ChainID(ctx context.Context) (*big.Int, error)

	// SendTransaction signs and submits a state-changing call, returning
	// the transaction hash once accepted by the network.
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)

	// SubscribeAccountsChanged registers a handler for account-set
	// changes and returns an unsubscribe func. The handler receives the
	// full new set; an empty set means the agent revoked access.
	SubscribeAccountsChanged(handler func([]common.Address)) func()

	// SubscribeChainChanged registers a handler for network switches and
	// returns an unsubscribe func.
	SubscribeChainChanged(handler func(*big.Int)) func()
}
