package chain

// Minimal ABI fragments for the three on-chain calls the chain client
// needs: ERC-20 balanceOf, EIP-3009 authorizationState, and EIP-3009
// transferWithAuthorization (the v/r/s EOA-signature variant — this
// facilitator never handles ERC-6492 smart-wallet signatures).

var erc20BalanceOfABI = []byte(`[
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

var authorizationStateABI = []byte(`[
	{
		"inputs": [
			{"name": "authorizer", "type": "address"},
			{"name": "nonce", "type": "bytes32"}
		],
		"name": "authorizationState",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

var transferWithAuthorizationABI = []byte(`[
	{
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "validAfter", "type": "uint256"},
			{"name": "validBefore", "type": "uint256"},
			{"name": "nonce", "type": "bytes32"},
			{"name": "v", "type": "uint8"},
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"}
		],
		"name": "transferWithAuthorization",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`)

const (
	functionBalanceOf                 = "balanceOf"
	functionAuthorizationState        = "authorizationState"
	functionTransferWithAuthorization = "transferWithAuthorization"
)

// TxStatus mirrors the EVM receipt status codes.
const (
	TxStatusFailed  = 0
	TxStatusSuccess = 1
)
