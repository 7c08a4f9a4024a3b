// Package txid generates the per-request transaction id threaded through
// logs and mirrored to the client (spec §3, §4.5 step 9).
package txid

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type contextKey struct{}

// FromContext returns the transaction id installed on ctx, and whether one
// is present. A present id means the pipeline must not generate or
// overwrite it (spec invariant 3: set exactly once per request).
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok
}

// WithContext returns a context carrying id as the request's transaction
// id.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Generate returns a transaction id of the form
// "tx<24 random hex chars>-<8 hex timestamp chars>[-<suffix>]". suffix may
// be empty, in which case the trailing "-suffix" segment is omitted.
func Generate(suffix string) (string, error) {
	randBytes := make([]byte, 12)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("generating transaction id: %w", err)
	}

	ts := fmt.Sprintf("%08x", uint32(time.Now().Unix()))
	id := "tx" + hex.EncodeToString(randBytes) + "-" + ts
	if suffix != "" {
		id += "-" + suffix
	}
	return id, nil
}
