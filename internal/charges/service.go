package charges

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/internal/notifications"
	"github.com/nafsiapp/nafsi-backend/internal/wallets"
	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// walletFinder resolves wallet ownership for access checks and
// notifications.
type walletFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
}

// Notifier delivers charge review notifications to the requesting user.
type Notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) (*models.Notification, error)
}

// Service handles wallet top-up requests and their admin review.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.ChargeRequest, error)
	Get(ctx context.Context, requestID, actorID uuid.UUID, actorRole enums.UserRole) (*models.ChargeRequest, error)
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error)
	ListPending(ctx context.Context, params pagination.Params) (*Page, error)
	Approve(ctx context.Context, requestID uuid.UUID) (*models.ChargeRequest, error)
	Reject(ctx context.Context, requestID uuid.UUID, rejectionNote string) (*models.ChargeRequest, error)
}

type service struct {
	repo        Repository
	wallets     wallets.Service
	walletsRepo walletFinder
	tx          txRunner
	notifier    Notifier
	logg        *logger.Logger
}

// CreateInput opens a top-up request for the user's wallet.
type CreateInput struct {
	UserID      uuid.UUID
	AmountCents int64
	Note        string
	ReceiptURL  *string
}

// Page is one page of charge requests plus the cursor for the next.
type Page struct {
	Requests   []models.ChargeRequest
	NextCursor *string
}

// NewService wires the charge request service.
func NewService(
	repo Repository,
	walletSvc wallets.Service,
	walletRepo walletFinder,
	tx txRunner,
	notifier Notifier,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("charges repository required")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("wallets service required")
	}
	if walletRepo == nil {
		return nil, fmt.Errorf("wallets repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:        repo,
		wallets:     walletSvc,
		walletsRepo: walletRepo,
		tx:          tx,
		notifier:    notifier,
		logg:        logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.ChargeRequest, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "user identity missing")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "charge amount must be positive")
	}

	wallet, err := s.wallets.EnsureWallet(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	request := &models.ChargeRequest{
		WalletID:    wallet.ID,
		AmountCents: input.AmountCents,
		Note:        strings.TrimSpace(input.Note),
		ReceiptURL:  input.ReceiptURL,
		Status:      enums.ChargeRequestStatusPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create charge request")
	}
	return request, nil
}

func (s *service) Get(ctx context.Context, requestID, actorID uuid.UUID, actorRole enums.UserRole) (*models.ChargeRequest, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actorRole.IsAdmin() {
		return request, nil
	}

	wallet, err := s.walletsRepo.FindByID(ctx, request.WalletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	if wallet.UserID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "charge request does not belong to caller")
	}
	return request, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error) {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return &Page{}, nil
		}
		return nil, err
	}
	return s.listPage(ctx, params, func(limit int, cursor *pagination.Cursor) ([]models.ChargeRequest, error) {
		return s.repo.ListByWallet(ctx, wallet.ID, limit, cursor)
	})
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*Page, error) {
	return s.listPage(ctx, params, func(limit int, cursor *pagination.Cursor) ([]models.ChargeRequest, error) {
		return s.repo.ListByStatus(ctx, enums.ChargeRequestStatusPending, limit, cursor)
	})
}

func (s *service) listPage(ctx context.Context, params pagination.Params, fetch func(int, *pagination.Cursor) ([]models.ChargeRequest, error)) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor").WithDetails(err.Error())
	}
	limit := pagination.NormalizeLimit(params.Limit)

	requests, err := fetch(limit+1, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list charge requests")
	}

	page := &Page{Requests: requests}
	if len(requests) > limit {
		page.Requests = requests[:limit]
		last := page.Requests[limit-1]
		next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		page.NextCursor = &next
	}
	return page, nil
}

// Approve credits the wallet and marks the request approved in one
// transaction. The guarded resolution keeps a double review from crediting
// twice.
func (s *service) Approve(ctx context.Context, requestID uuid.UUID) (*models.ChargeRequest, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.ChargeRequestStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "charge request already reviewed")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resolved, err := s.repo.WithTx(tx).ResolveGuarded(ctx, requestID, enums.ChargeRequestStatusApproved, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve charge request")
		}
		if !resolved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "charge request already reviewed")
		}

		note := "wallet top-up"
		_, err = s.wallets.WithTx(tx).Credit(ctx, wallets.CreditInput{
			ToWalletID:  request.WalletID,
			AmountCents: request.AmountCents,
			Note:        &note,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	request.Status = enums.ChargeRequestStatusApproved
	s.notifyOwner(ctx, request, enums.NotificationTypeChargeApproved, "Top-up approved",
		"Your wallet top-up request was approved and credited")
	return request, nil
}

func (s *service) Reject(ctx context.Context, requestID uuid.UUID, rejectionNote string) (*models.ChargeRequest, error) {
	rejectionNote = strings.TrimSpace(rejectionNote)
	if rejectionNote == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection note required")
	}

	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.ChargeRequestStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "charge request already reviewed")
	}

	resolved, err := s.repo.ResolveGuarded(ctx, requestID, enums.ChargeRequestStatusRejected, &rejectionNote)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve charge request")
	}
	if !resolved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "charge request already reviewed")
	}

	request.Status = enums.ChargeRequestStatusRejected
	request.RejectionNote = &rejectionNote
	s.notifyOwner(ctx, request, enums.NotificationTypeChargeRejected, "Top-up rejected",
		"Your wallet top-up request was rejected: "+rejectionNote)
	return request, nil
}

func (s *service) load(ctx context.Context, requestID uuid.UUID) (*models.ChargeRequest, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge request id required")
	}
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "charge request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load charge request")
	}
	return request, nil
}

func (s *service) notifyOwner(ctx context.Context, request *models.ChargeRequest, kind enums.NotificationType, title, body string) {
	if s.notifier == nil {
		return
	}
	wallet, err := s.walletsRepo.FindByID(ctx, request.WalletID)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "load wallet for charge notification", err)
		}
		return
	}
	if _, err := s.notifier.Notify(ctx, notifications.NotifyInput{
		UserID: wallet.UserID,
		Type:   kind,
		Title:  title,
		Body:   body,
	}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "send charge notification", err)
	}
}
