package service

import (
	"context"
	"testing"
	"time"

	"github.com/hubp2p/exchange-service/internal/models"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type fakeKYCRepo struct {
	byID   map[int64]*models.KYCVerification
	nextID int64
}

func newFakeKYCRepo() *fakeKYCRepo {
	return &fakeKYCRepo{byID: map[int64]*models.KYCVerification{}}
}

func (f *fakeKYCRepo) Create(_ context.Context, v *models.KYCVerification) error {
	f.nextID++
	v.ID = f.nextID
	v.CreatedAt = time.Now().UTC()
	v.UpdatedAt = v.CreatedAt
	cp := *v
	f.byID[v.ID] = &cp
	return nil
}

func (f *fakeKYCRepo) GetByID(_ context.Context, id int64) (*models.KYCVerification, error) {
	v, ok := f.byID[id]
	if !ok {
		return nil, pkgerrors.ErrKYCNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeKYCRepo) GetCurrentByUser(_ context.Context, userID int64) (*models.KYCVerification, error) {
	var latest *models.KYCVerification
	for _, v := range f.byID {
		if v.UserID != userID {
			continue
		}
		if latest == nil || v.UpdatedAt.After(latest.UpdatedAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, pkgerrors.ErrKYCNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeKYCRepo) ListByStatus(_ context.Context, status models.KYCStatus) ([]models.KYCVerification, error) {
	var out []models.KYCVerification
	for _, v := range f.byID {
		if v.Status == status {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeKYCRepo) UpdateStatus(_ context.Context, id int64, status models.KYCStatus, rejectionReason string) (*models.KYCVerification, error) {
	v, ok := f.byID[id]
	if !ok {
		return nil, pkgerrors.ErrKYCNotFound
	}
	v.Status = status
	v.RejectionReason = rejectionReason
	v.UpdatedAt = time.Now().UTC()
	if status == models.KYCApproved {
		now := time.Now().UTC()
		v.VerifiedAt = &now
	}
	cp := *v
	return &cp, nil
}

func TestKYCService_Submit(t *testing.T) {
	ctx := context.Background()
	svc := NewKYCService(newFakeKYCRepo())

	t.Run("requires document fields", func(t *testing.T) {
		_, err := svc.Submit(ctx, 1, SubmitKYCInput{DocumentType: "cpf"})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("starts pending", func(t *testing.T) {
		v, err := svc.Submit(ctx, 1, SubmitKYCInput{
			DocumentType:   "cpf",
			DocumentNumber: "123.456.789-00",
		})
		assert.NoError(t, err)
		assert.Equal(t, models.KYCPending, v.Status)

		current, err := svc.Current(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, v.ID, current.ID)
	})
}

func TestKYCService_Review(t *testing.T) {
	ctx := context.Background()
	repo := newFakeKYCRepo()
	svc := NewKYCService(repo)

	v, err := svc.Submit(ctx, 1, SubmitKYCInput{DocumentType: "cpf", DocumentNumber: "123"})
	assert.NoError(t, err)

	t.Run("reject requires a reason", func(t *testing.T) {
		_, err := svc.Reject(ctx, v.ID, "   ")
		assert.ErrorIs(t, err, pkgerrors.ErrRejectionReason)
	})

	t.Run("approve stamps verified_at", func(t *testing.T) {
		reviewed, err := svc.StartReview(ctx, v.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.KYCInReview, reviewed.Status)

		approved, err := svc.Approve(ctx, v.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.KYCApproved, approved.Status)
		assert.NotNil(t, approved.VerifiedAt)
	})

	t.Run("terminal records cannot be re-reviewed", func(t *testing.T) {
		_, err := svc.Reject(ctx, v.ID, "blurry document")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("unknown verification", func(t *testing.T) {
		_, err := svc.Approve(ctx, 999)
		assert.ErrorIs(t, err, pkgerrors.ErrKYCNotFound)
	})
}
