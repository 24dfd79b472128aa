package protocol

// Message type discriminators exchanged over a gossip mesh session.
const (
	TypeAnnounce     = "announce"
	TypeBelief       = "belief"
	TypeAcousticPing = "acoustic_ping"
	TypeAcousticPong = "acoustic_pong"
)

// Announce is the mandatory first message on every session.
type Announce struct {
	Type   string `json:"type"`
	NodeID string `json:"node_id"`
}

// NewAnnounce builds an Announce message for nodeID.
func NewAnnounce(nodeID string) Announce {
	return Announce{Type: TypeAnnounce, NodeID: nodeID}
}

// AcousticPingRequest asks a peer to emit a chirp after DelayS and
// acknowledge.
type AcousticPingRequest struct {
	Type          string  `json:"type"`
	RequestID     string  `json:"request_id"`
	DelayS        float64 `json:"delay_s"`
	SampleRate    int     `json:"sample_rate"`
	FreqStart     int     `json:"freq_start"`
	FreqEnd       int     `json:"freq_end"`
	ChirpDuration float64 `json:"chirp_duration"`
}

// AcousticPongResponse acknowledges (or fails) an AcousticPingRequest.
type AcousticPongResponse struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
}
