package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProofRepository records which access proofs were issued for a project.
// Keys follow gate:<projectID>:<tokenHash> and expire with the proof.
type ProofRepository struct {
	client *redis.Client
}

// NewProofRepository constructs the repository.
func NewProofRepository(client *redis.Client) *ProofRepository {
	return &ProofRepository{client: client}
}

func proofKey(projectID, tokenHash string) string {
	return "gate:" + projectID + ":" + tokenHash
}

// Save records a proof for ttl.
func (r *ProofRepository) Save(ctx context.Context, projectID, tokenHash string, ttl time.Duration) error {
	if err := r.client.Set(ctx, proofKey(projectID, tokenHash), time.Now().UTC().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("save proof: %w", err)
	}
	return nil
}

// Exists reports whether the proof is still recorded.
func (r *ProofRepository) Exists(ctx context.Context, projectID, tokenHash string) (bool, error) {
	n, err := r.client.Exists(ctx, proofKey(projectID, tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("check proof: %w", err)
	}
	return n > 0, nil
}

// RevokeProject drops every proof issued for the project.
func (r *ProofRepository) RevokeProject(ctx context.Context, projectID string) error {
	if _, err := deleteMatching(ctx, r.client, proofKey(projectID, "*")); err != nil {
		return fmt.Errorf("revoke proofs: %w", err)
	}
	return nil
}
