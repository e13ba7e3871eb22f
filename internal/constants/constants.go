package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20

	// DefaultRateLimitPerSecond is the default rate limit (requests per second)
	DefaultRateLimitPerSecond = 100

	// DefaultRateLimitBurst is the default rate limit burst size
	DefaultRateLimitBurst = 200
)

// API Paths
const (
	// DefaultGraphQLPath is the default GraphQL endpoint path
	DefaultGraphQLPath = "/graphql"

	// DefaultWebSocketPath is the default notification WebSocket path
	DefaultWebSocketPath = "/ws"
)

// Chain Constants
const (
	// DefaultRPCTimeout is the default timeout for chain RPC calls
	DefaultRPCTimeout = 30 * time.Second

	// DefaultReceiptPollInterval is how often to poll for a transaction receipt
	DefaultReceiptPollInterval = 2 * time.Second

	// DefaultSettlementTimeout is the maximum time to wait for a purchase
	// transaction to settle before failing the sequence
	DefaultSettlementTimeout = 3 * time.Minute
)

// External Endpoint Constants
const (
	// DefaultHTTPTimeout is the default timeout for outbound HTTP calls
	// (source retrieval, AI queries, gateway fetches, webhooks)
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultIPFSGateway is the public gateway used to resolve ipfs:// URIs
	DefaultIPFSGateway = "https://ipfs.io/ipfs/"
)

// Source Preview Constants
const (
	// CollapsedPreviewLines is the number of source lines shown before
	// the reader expands the panel
	CollapsedPreviewLines = 10
)
