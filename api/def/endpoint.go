package def

import "time"

// Protocol names the application-level transport a ServiceEndpoint speaks;
// the fabric itself always wraps it in the encrypted multiplexed transport.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

/*
	ServiceEndpoint is what the fabric's service registry announces and
	what the resolver hands back.  EncryptionKey, when set, is the
	32-byte per-service symmetric key application messages addressed to
	this service are encrypted under.
*/
type ServiceEndpoint struct {
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Port          int      `json:"port"`
	Protocol      Protocol `json:"protocol"`
	EncryptionKey []byte   `json:"encryptionKey,omitempty"`
}

// RecordKind is one of the three logical resolution record kinds.
type RecordKind string

const (
	RecordAddress RecordKind = "address"
	RecordService RecordKind = "service"
	RecordAlias   RecordKind = "alias"
)

// TTL defaults for resolution records.
const (
	TTLService         = 300 * time.Second
	TTLRemoteDiscovered = 60 * time.Second
	TTLControl         = 86400 * time.Second
)

// ResolutionRecord is one cached answer to a name lookup.
type ResolutionRecord struct {
	Name        string     `json:"name"`
	Kind        RecordKind `json:"kind"`
	Address     string     `json:"address,omitempty"`
	Port        int        `json:"port,omitempty"`
	Alias       string     `json:"alias,omitempty"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

func (r ResolutionRecord) Expired(now time.Time) bool { return now.After(r.ExpiresAt) }
