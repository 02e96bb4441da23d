package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Call surface of the Microfinance ledger program. The signatures are
// fixed; changing them breaks compatibility with the deployed contract.
const microfinanceABIJSON = `[
  {
    "type": "function",
    "name": "requestLoan",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "amount", "type": "uint256"},
      {"name": "duration", "type": "uint256"},
      {"name": "purpose", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "repayLoan",
    "stateMutability": "payable",
    "inputs": [{"name": "loanId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getUserLoanCount",
    "stateMutability": "view",
    "inputs": [{"name": "user", "type": "address"}],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "getUserLoanAtIndex",
    "stateMutability": "view",
    "inputs": [
      {"name": "user", "type": "address"},
      {"name": "index", "type": "uint256"}
    ],
    "outputs": [
      {
        "name": "",
        "type": "tuple",
        "components": [
          {"name": "amount", "type": "uint256"},
          {"name": "duration", "type": "uint256"},
          {"name": "purpose", "type": "string"},
          {"name": "status", "type": "uint8"},
          {"name": "dueDate", "type": "uint256"}
        ]
      }
    ]
  },
  {
    "type": "function",
    "name": "getUserCreditScore",
    "stateMutability": "view",
    "inputs": [{"name": "user", "type": "address"}],
    "outputs": [{"name": "", "type": "uint256"}]
  }
]`

var microfinanceABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(microfinanceABIJSON))
	if err != nil {
		panic("ledger: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
