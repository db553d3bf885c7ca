package sqlite

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/untoldecay/loom/internal/errs"
)

const idPrefix = "wi-"

// generateRootID produces a short content-seeded hash ID for a root item.
// Collisions are resolved by lengthening the hash, the same way the source
// tracker grows its ID space with database size.
func generateRootID(ctx context.Context, q dbtx, title string) (string, error) {
	seed := make([]byte, 8)
	if _, err := rand.Read(seed); err != nil {
		return "", errs.Database(err, "failed to seed ID generation")
	}
	h := sha256.Sum256(append([]byte(title+time.Now().UTC().String()), seed...))
	digest := hex.EncodeToString(h[:])

	for length := 5; length <= len(digest); length++ {
		id := idPrefix + digest[:length]
		var count int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE id = ?`, id).Scan(&count); err != nil {
			return "", errs.Database(err, "failed to check ID collision")
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", errs.New(errs.CodeInternal, "exhausted ID space for %q", title)
}

// nextChildID generates the next hierarchical child ID for a parent
// (parentID.N), using the child_counters table for an atomic increment.
func nextChildID(ctx context.Context, q dbtx, parentID string) (string, error) {
	var next int
	err := q.QueryRowContext(ctx, `
		INSERT INTO child_counters (parent_id, last_child)
		VALUES (?, 1)
		ON CONFLICT(parent_id) DO UPDATE SET
			last_child = last_child + 1
		RETURNING last_child
	`, parentID).Scan(&next)
	if err != nil {
		return "", errs.Database(err, "failed to generate child number for parent %s", parentID)
	}
	return fmt.Sprintf("%s.%d", parentID, next), nil
}
