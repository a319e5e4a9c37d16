package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/cutreview-api/internal/dto"
	"github.com/noah-isme/cutreview-api/internal/models"
	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
	"github.com/noah-isme/cutreview-api/pkg/proof"
)

type proofStore interface {
	Save(ctx context.Context, projectID, tokenHash string, ttl time.Duration) error
	Exists(ctx context.Context, projectID, tokenHash string) (bool, error)
	RevokeProject(ctx context.Context, projectID string) error
}

type gateProjectStore interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
	UpdatePassword(ctx context.Context, id string, hash *string) error
}

// PasswordGate guards the review pages of password protected projects.
type PasswordGate struct {
	projects gateProjectStore
	guard    *AccessGuard
	signer   *proof.Signer
	proofs   proofStore
	logger   *zap.Logger
}

// NewPasswordGate constructs the gate.
func NewPasswordGate(projects gateProjectStore, guard *AccessGuard, signer *proof.Signer, proofs proofStore, logger *zap.Logger) *PasswordGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordGate{projects: projects, guard: guard, signer: signer, proofs: proofs, logger: logger}
}

// Verify checks password against the project secret and, on success, issues a proof
// token recorded for the project. Unprotected projects always succeed without a token.
func (g *PasswordGate) Verify(ctx context.Context, projectID, password string) (*dto.VerifyPasswordResponse, error) {
	project, err := g.guard.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.PasswordProtected || project.PasswordHash == nil {
		return &dto.VerifyPasswordResponse{Success: true, Message: "project is not password protected"}, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*project.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			g.logger.Warn("password hash comparison failed", zap.String("project_id", projectID), zap.Error(err))
		}
		return &dto.VerifyPasswordResponse{Success: false, Message: "incorrect password"}, nil
	}

	token, expiresAt, err := g.signer.Issue(project.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access proof")
	}
	if err := g.proofs.Save(ctx, project.ID, proof.Hash(token), time.Until(expiresAt)); err != nil {
		return nil, appErrors.Persistence(err, "failed to record access proof")
	}
	return &dto.VerifyPasswordResponse{Success: true, Message: "access granted", Token: token, ExpiresAt: &expiresAt}, nil
}

// Check returns nil when the project is open or token is a live proof for it.
func (g *PasswordGate) Check(ctx context.Context, projectID, token string) error {
	project, err := g.guard.loadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !project.PasswordProtected {
		return nil
	}
	ok, err := g.HasAccess(ctx, project.ID, token)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.WithDetails(appErrors.ErrUnauthorized, "project password required",
			map[string]interface{}{"password_required": true})
	}
	return nil
}

// HasAccess reports whether token is a valid, unexpired and unrevoked proof for projectID.
func (g *PasswordGate) HasAccess(ctx context.Context, projectID, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	if _, err := g.signer.Verify(token, projectID); err != nil {
		return false, nil
	}
	ok, err := g.proofs.Exists(ctx, projectID, proof.Hash(token))
	if err != nil {
		return false, appErrors.Persistence(err, "failed to check access proof")
	}
	return ok, nil
}

// SetPassword enables protection with password, or disables it when password is nil or
// empty. Every proof issued before is revoked.
func (g *PasswordGate) SetPassword(ctx context.Context, actor models.Actor, projectID string, password *string) error {
	if _, err := g.guard.RequireProjectEditor(ctx, actor, projectID); err != nil {
		return err
	}
	var hash *string
	if password != nil && *password != "" {
		hashed, err := hashPassword(*password)
		if err != nil {
			return err
		}
		hash = &hashed
	}
	if err := g.projects.UpdatePassword(ctx, projectID, hash); err != nil {
		return appErrors.Persistence(err, "failed to update project password")
	}
	if err := g.proofs.RevokeProject(ctx, projectID); err != nil {
		return appErrors.Persistence(err, "failed to revoke access proofs")
	}
	g.logger.Info("project password updated", zap.String("project_id", projectID), zap.Bool("protected", hash != nil))
	return nil
}

// Signer exposes the proof signer, used to size the access cookie.
func (g *PasswordGate) Signer() *proof.Signer {
	return g.signer
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "password cannot be used")
	}
	return string(hashed), nil
}
