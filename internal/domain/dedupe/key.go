package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DefaultBucket is the capture-time granularity folded into keys.
const DefaultBucket = time.Minute

// Key returns the idempotency key for an observation: the lowercase sha256
// hex of endpoint, source reference, feature version and the capture time
// truncated to bucket (UTC unix seconds). Captures of the same source inside
// one bucket share a key.
func Key(endpointID, sourceRef, featureVersion string, capturedAt time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	slot := capturedAt.UTC().Truncate(bucket).Unix()
	raw := strings.Join([]string{endpointID, sourceRef, featureVersion, strconv.FormatInt(slot, 10)}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
