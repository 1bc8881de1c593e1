package integration

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/integration"
)

// ReplayedMessage is the summary reported for a body that was already applied
const ReplayedMessage = "Already processed: duplicate request acknowledged"

// SyncCommand is one decoded webhook request
type SyncCommand struct {
	RequestID   string
	Items       []integration.PosItem
	Fingerprint string
}

// NewSyncCommand creates a command and fingerprints the raw body it was decoded from
func NewSyncCommand(requestID string, items []integration.PosItem, body []byte) SyncCommand {
	return SyncCommand{
		RequestID:   requestID,
		Items:       items,
		Fingerprint: Fingerprint(body),
	}
}

// SyncResult is the outcome of a SyncCommand as reported to the POS
type SyncResult struct {
	Outcome    *integration.RequestOutcome
	Replayed   bool
	Message    string
	StatusCode int
}

// SyncResultResponse is the JSON view of a SyncResult
type SyncResultResponse struct {
	Message  string   `json:"message"`
	Updated  int      `json:"updated"`
	Deleted  int      `json:"deleted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
	Replayed bool     `json:"replayed,omitempty"`
}

// ToResponse converts the result to its JSON view
func (r *SyncResult) ToResponse() SyncResultResponse {
	resp := SyncResultResponse{
		Message:  r.Message,
		Errors:   []string{},
		Replayed: r.Replayed,
	}
	if r.Outcome != nil {
		resp.Updated = r.Outcome.Updated
		resp.Deleted = r.Outcome.Deleted
		resp.Skipped = r.Outcome.Skipped
		if r.Outcome.Errors != nil {
			resp.Errors = r.Outcome.Errors
		}
	}
	return resp
}

// Fingerprint identifies a raw request body for the replay guard
func Fingerprint(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha256.Sum256(body)
	return "catapult:" + hex.EncodeToString(sum[:])
}
