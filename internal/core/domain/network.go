package domain

// Network identifies the target verification chain deployment.
type Network string

const (
	NetworkTestnet Network = "testnet"
	NetworkMainnet Network = "mainnet"
	NetworkLocal   Network = "local"
)
