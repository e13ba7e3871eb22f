// Package marketplace binds the on-chain marketplace contract: listing
// reads over batched eth_call and the payable access purchase.
package marketplace

// MarketplaceABI covers the subset of the contract surface the service
// uses: total supply, per-token details, metadata URI and the payable
// access function.
const MarketplaceABI = `[
	{
		"inputs": [],
		"name": "getTotalTokenIds",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
		"name": "getContractDetails",
		"outputs": [
			{"internalType": "address", "name": "creator", "type": "address"},
			{"internalType": "string[]", "name": "tags", "type": "string[]"},
			{"internalType": "uint256", "name": "usageFee", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
		"name": "tokenURI",
		"outputs": [{"internalType": "string", "name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
		"name": "accessContract",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`
