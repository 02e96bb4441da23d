// Package localagent is the built-in signing agent: a single secp256k1
// key derived from a mnemonic and held in an encrypted keystore. It
// fills in nonce and gas, signs, and submits through the chain backend.
//
// An external wallet daemon can replace it behind the same
// wallet.SigningAgent interface; nothing above this package knows the
// difference.
package localagent

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"io"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"

	"microloan/go-client/internal/fault"
	"microloan/go-client/internal/securestore"
	"microloan/go-client/internal/wallet"
)

const hkdfInfoSigning = "microloan/agent/signing/v1"

// ChainWriter is the slice of the network the agent needs to submit a
// signed transaction.
type ChainWriter interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Approver decides whether a signing request goes ahead. The default
// approves everything, which suits a headless daemon operating its own
// key; an interactive front end can require confirmation.
type Approver func(req wallet.TxRequest) bool

type Agent struct {
	backend ChainWriter
	approve Approver

	mu              sync.Mutex
	key             *ecdsa.PrivateKey
	address         common.Address
	accountHandlers map[int]func([]common.Address)
	chainHandlers   map[int]func(*big.Int)
	nextHandler     int
}

func New(key *ecdsa.PrivateKey, backend ChainWriter, approve Approver) *Agent {
	if approve == nil {
		approve = func(wallet.TxRequest) bool { return true }
	}
	return &Agent{
		backend:         backend,
		approve:         approve,
		key:             key,
		address:         crypto.PubkeyToAddress(key.PublicKey),
		accountHandlers: make(map[int]func([]common.Address)),
		chainHandlers:   make(map[int]func(*big.Int)),
	}
}

// NewFromMnemonic derives the signing key from a BIP-39 mnemonic.
func NewFromMnemonic(mnemonic string, backend ChainWriter, approve Approver) (*Agent, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("localagent: invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	key, err := deriveSigningKey(seed)
	if err != nil {
		return nil, err
	}
	return New(key, backend, approve), nil
}

// LoadKeystore opens an encrypted keystore written by SaveKeystore.
func LoadKeystore(path, passphrase string, backend ChainWriter, approve Approver) (*Agent, error) {
	raw, err := securestore.OpenFromFile(path, passphrase)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(string(raw))
	if err != nil {
		return nil, errors.New("localagent: keystore does not contain a valid key")
	}
	return New(key, backend, approve), nil
}

// SaveKeystore persists the agent's key encrypted at rest.
func (a *Agent) SaveKeystore(path, passphrase string) error {
	a.mu.Lock()
	keyHex := hexutil.Encode(crypto.FromECDSA(a.key))[2:]
	a.mu.Unlock()
	return securestore.SealToFile(path, passphrase, []byte(keyHex))
}

func (a *Agent) Address() common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.address
}

func (a *Agent) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return []common.Address{a.address}, nil
}

func (a *Agent) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := a.backend.ChainID(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.CodeNetwork, "chain id read failed", err)
	}
	return id, nil
}

// SendTransaction signs req with the agent's key and submits it. The
// user (via the approver) can decline, which surfaces as
// authorization_denied.
func (a *Agent) SendTransaction(ctx context.Context, req wallet.TxRequest) (common.Hash, error) {
	a.mu.Lock()
	key := a.key
	address := a.address
	a.mu.Unlock()

	if req.From != address {
		return common.Hash{}, fault.New(fault.CodeAuthorizationDenied, "request is not for the agent's account")
	}
	if !a.approve(req) {
		return common.Hash{}, fault.New(fault.CodeAuthorizationDenied, "user declined signing")
	}

	chainID, err := a.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fault.Wrap(fault.CodeNetwork, "chain id read failed", err)
	}
	nonce, err := a.backend.PendingNonceAt(ctx, address)
	if err != nil {
		return common.Hash{}, fault.Wrap(fault.CodeNetwork, "nonce read failed", err)
	}
	gasPrice, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fault.Wrap(fault.CodeNetwork, "gas price read failed", err)
	}
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = a.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  req.From,
			To:    &req.To,
			Value: req.Value,
			Data:  req.Data,
		})
		if err != nil {
			return common.Hash{}, fault.Wrap(fault.CodeNetwork, "gas estimation failed", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    req.Value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return common.Hash{}, fault.Wrap(fault.CodeProtocol, "transaction signing failed", err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fault.Wrap(fault.CodeNetwork, "transaction submission failed", err)
	}
	return signed.Hash(), nil
}

func (a *Agent) SubscribeAccountsChanged(handler func([]common.Address)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextHandler
	a.nextHandler++
	a.accountHandlers[id] = handler
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.accountHandlers, id)
	}
}

func (a *Agent) SubscribeChainChanged(handler func(*big.Int)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextHandler
	a.nextHandler++
	a.chainHandlers[id] = handler
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.chainHandlers, id)
	}
}

// Lock revokes access: subscribers observe an empty account set, the
// same shape a browser wallet produces when the user disconnects.
func (a *Agent) Lock() {
	a.mu.Lock()
	handlers := make([]func([]common.Address), 0, len(a.accountHandlers))
	for _, h := range a.accountHandlers {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()
	for _, h := range handlers {
		h(nil)
	}
}

func deriveSigningKey(seed []byte) (*ecdsa.PrivateKey, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(hkdfInfoSigning))
	buf := make([]byte, 32)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return nil, err
	}
	key, err := crypto.ToECDSA(buf)
	if err != nil {
		return nil, errors.New("localagent: derived bytes are not a valid key")
	}
	return key, nil
}

// GenerateMnemonic creates a fresh 12-word mnemonic for first-run
// setup.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

var _ wallet.SigningAgent = (*Agent)(nil)
