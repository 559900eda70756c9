package graphmodel

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const idLength = 12

// EntityID derives the deterministic, content-addressed ID for an entity
// key: base64url(sha256("{file}|{type}|{name}|{start}-{end}"))[0:12].
// Re-indexing identical source always yields the same ID.
func EntityID(key EntityKey) string {
	raw := fmt.Sprintf("%s|%s|%s|%d-%d", key.FilePath, key.Type, key.Name, key.Start, key.End)
	return digest(raw)
}

// RelationshipID derives the deterministic ID for a relationship key.
func RelationshipID(key RelationshipKey) string {
	raw := fmt.Sprintf("%s|%s|%s", key.FromID, key.ToID, key.Type)
	return digest(raw)
}

func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	enc := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sum[:])
	if len(enc) > idLength {
		return enc[:idLength]
	}
	return enc
}

// ContentHash hashes an arbitrary byte span (an entity's source text or a
// whole file) for change detection.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sum[:])
}
