package logger

// Standard field keys for structured logging.
// Use these consistently across handlers and background jobs so that log
// aggregation and querying see one key per concept.
const (
	// Request correlation
	KeyRequestID = "request_id" // HTTP request ID assigned by the router
	KeyClientIP  = "client_ip"  // Client IP address (without port)

	// Propagation domain
	KeyStoreID   = "store_id"   // 64-hex store identifier
	KeySessionID = "session_id" // Upload session UUID
	KeyRootHash  = "root_hash"  // Merkle root commitment hash
	KeyFilename  = "filename"   // Relative file path inside a store

	// Measurements
	KeyBytes    = "bytes"       // Byte count for transfers
	KeyDuration = "duration_ms" // Elapsed time in milliseconds
	KeyError    = "error"       // Error message
)
