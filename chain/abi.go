package chain

// Function names used when packing contract calls.
const (
	FunctionTransferWithAuthorization = "transferWithAuthorization"
	FunctionBalanceOf                 = "balanceOf"
	FunctionSettlePayment             = "settlePayment"
)

// transferWithAuthorizationABI is EIP-3009's transferWithAuthorization with a
// (v, r, s) signature, as implemented by EOA-signed tokens like USDC.
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

var balanceOfABI = []byte(`[
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

// settlePaymentABI is the escrow adapter's settlement entry point: it takes
// the asset, an application-level order id, and the same EIP-3009 fields the
// direct-transfer path uses, so the adapter can call transferWithAuthorization
// on the client's behalf after recording the order.
var settlePaymentABI = []byte(`[
	{
		"inputs": [
			{"name": "asset", "type": "address"},
			{"name": "orderId", "type": "string"},
			{"name": "from", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "validAfter", "type": "uint256"},
			{"name": "validBefore", "type": "uint256"},
			{"name": "nonce", "type": "bytes32"},
			{"name": "v", "type": "uint8"},
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"}
		],
		"name": "settlePayment",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`)
