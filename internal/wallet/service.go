package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velmora/storefront-backend/internal/users"
	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/metrics"
	"github.com/velmora/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines wallet ledger and withdrawal operations.
//
// Every balance mutation locks the user row, appends a ledger entry with
// balance_before/balance_after, and updates the cached balance inside one
// transaction. CreditTx/DebitTx run inside a caller-owned transaction so
// order and gift card flows stay atomic with their own writes.
type Service interface {
	Credit(ctx context.Context, input CreditInput) (*models.WalletTransaction, error)
	CreditTx(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.WalletTransaction, error)
	Debit(ctx context.Context, input DebitInput) (*models.WalletTransaction, error)
	DebitTx(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.WalletTransaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, *pagination.Cursor, error)

	RequestWithdrawal(ctx context.Context, input RequestWithdrawalInput) (*models.WithdrawalRequest, error)
	CancelWithdrawal(ctx context.Context, userID, requestID uuid.UUID) (*models.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, adminID, requestID uuid.UUID) (*models.WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, adminID, requestID uuid.UUID, note *string) (*models.WithdrawalRequest, error)
	MarkWithdrawalProcessing(ctx context.Context, adminID, requestID uuid.UUID) (*models.WithdrawalRequest, error)
	CompleteWithdrawal(ctx context.Context, adminID, requestID uuid.UUID) (*models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error)
	ListWithdrawalsByStatus(ctx context.Context, status enums.WithdrawalStatus, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error)
}

// CreditInput describes a wallet credit.
type CreditInput struct {
	UserID      uuid.UUID
	Type        enums.WalletTransactionType
	AmountCents int64
	Description string
	OrderID     *uuid.UUID
	ActorID     *uuid.UUID
}

// DebitInput describes a wallet debit.
type DebitInput struct {
	UserID      uuid.UUID
	Type        enums.WalletTransactionType
	AmountCents int64
	Description string
	OrderID     *uuid.UUID
	ActorID     *uuid.UUID
}

// RequestWithdrawalInput captures a customer withdrawal request. The amount
// is debited up front and held until the request resolves.
type RequestWithdrawalInput struct {
	UserID      uuid.UUID
	AmountCents int64
	Method      string
}

type service struct {
	repo    Repository
	users   users.Repository
	tx      txRunner
	metrics *metrics.CommerceMetrics
	now     func() time.Time
}

// NewService wires a wallet service with the required dependencies.
func NewService(repo Repository, usersRepo users.Repository, tx txRunner, m *metrics.CommerceMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:    repo,
		users:   usersRepo,
		tx:      tx,
		metrics: m,
		now:     time.Now,
	}, nil
}

func (s *service) Credit(ctx context.Context, input CreditInput) (*models.WalletTransaction, error) {
	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = s.CreditTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) CreditTx(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.WalletTransaction, error) {
	if err := validateLedgerInput(input.UserID, input.Type, input.AmountCents, true); err != nil {
		s.recordOp(input.Type, "invalid")
		return nil, err
	}

	txn, err := s.apply(ctx, tx, ledgerEntry{
		userID:      input.UserID,
		txnType:     input.Type,
		amountCents: input.AmountCents,
		description: input.Description,
		orderID:     input.OrderID,
		actorID:     input.ActorID,
	})
	if err != nil {
		s.recordOp(input.Type, "error")
		return nil, err
	}
	s.recordOp(input.Type, "ok")
	return txn, nil
}

func (s *service) Debit(ctx context.Context, input DebitInput) (*models.WalletTransaction, error) {
	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = s.DebitTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) DebitTx(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.WalletTransaction, error) {
	if err := validateLedgerInput(input.UserID, input.Type, input.AmountCents, false); err != nil {
		s.recordOp(input.Type, "invalid")
		return nil, err
	}

	txn, err := s.apply(ctx, tx, ledgerEntry{
		userID:      input.UserID,
		txnType:     input.Type,
		amountCents: input.AmountCents,
		description: input.Description,
		orderID:     input.OrderID,
		actorID:     input.ActorID,
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
			s.recordOp(input.Type, "insufficient")
		} else {
			s.recordOp(input.Type, "error")
		}
		return nil, err
	}
	s.recordOp(input.Type, "ok")
	return txn, nil
}

type ledgerEntry struct {
	userID      uuid.UUID
	txnType     enums.WalletTransactionType
	amountCents int64
	description string
	orderID     *uuid.UUID
	actorID     *uuid.UUID
}

// apply performs the locked read-append-update sequence. The user row lock
// serializes concurrent mutations on the same wallet.
func (s *service) apply(ctx context.Context, tx *gorm.DB, entry ledgerEntry) (*models.WalletTransaction, error) {
	usersRepo := s.users.WithTx(tx)
	repo := s.repo.WithTx(tx)

	user, err := usersRepo.FindByIDForUpdate(ctx, entry.userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock user row")
	}

	before := user.WalletBalanceCents
	after := before + entry.amountCents
	if !entry.txnType.IsCredit() {
		if before < entry.amountCents {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient wallet balance")
		}
		after = before - entry.amountCents
	}

	txn := &models.WalletTransaction{
		UserID:             entry.userID,
		Type:               entry.txnType,
		AmountCents:        entry.amountCents,
		BalanceBeforeCents: before,
		BalanceAfterCents:  after,
		Description:        entry.description,
		OrderID:            entry.orderID,
		ActorID:            entry.actorID,
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append wallet transaction")
	}
	if err := usersRepo.UpdateWalletBalance(ctx, entry.userID, after); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
	}
	return txn, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user.WalletBalanceCents, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, *pagination.Cursor, error) {
	if userID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	txns, cursor, err := s.repo.ListTransactions(ctx, userID, params)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet transactions")
	}
	return txns, cursor, nil
}

func (s *service) RequestWithdrawal(ctx context.Context, input RequestWithdrawalInput) (*models.WithdrawalRequest, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}
	if input.Method == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal method required")
	}

	request := &models.WithdrawalRequest{
		UserID:      input.UserID,
		AmountCents: input.AmountCents,
		Method:      input.Method,
		Status:      enums.WithdrawalStatusPending,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.DebitTx(ctx, tx, DebitInput{
			UserID:      input.UserID,
			Type:        enums.WalletTxnDebitWithdrawal,
			AmountCents: input.AmountCents,
			Description: fmt.Sprintf("Withdrawal request via %s", input.Method),
		}); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).CreateWithdrawal(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *service) CancelWithdrawal(ctx context.Context, userID, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.resolveWithdrawal(ctx, requestID, enums.WithdrawalStatusCancelled, withdrawalResolution{
		actor:    userID,
		owner:    &userID,
		recredit: true,
		reason:   "Withdrawal request cancelled",
	})
}

func (s *service) ApproveWithdrawal(ctx context.Context, adminID, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.resolveWithdrawal(ctx, requestID, enums.WithdrawalStatusApproved, withdrawalResolution{
		actor:     adminID,
		processed: true,
	})
}

func (s *service) RejectWithdrawal(ctx context.Context, adminID, requestID uuid.UUID, note *string) (*models.WithdrawalRequest, error) {
	return s.resolveWithdrawal(ctx, requestID, enums.WithdrawalStatusRejected, withdrawalResolution{
		actor:     adminID,
		processed: true,
		recredit:  true,
		note:      note,
		reason:    "Withdrawal request rejected",
	})
}

func (s *service) MarkWithdrawalProcessing(ctx context.Context, adminID, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.resolveWithdrawal(ctx, requestID, enums.WithdrawalStatusProcessing, withdrawalResolution{
		actor:     adminID,
		processed: true,
	})
}

func (s *service) CompleteWithdrawal(ctx context.Context, adminID, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.resolveWithdrawal(ctx, requestID, enums.WithdrawalStatusCompleted, withdrawalResolution{
		actor:     adminID,
		processed: true,
	})
}

type withdrawalResolution struct {
	actor     uuid.UUID
	owner     *uuid.UUID
	processed bool
	recredit  bool
	note      *string
	reason    string
}

// canTransitionWithdrawal declares the allowed status moves.
func canTransitionWithdrawal(current, target enums.WithdrawalStatus) bool {
	switch target {
	case enums.WithdrawalStatusCancelled, enums.WithdrawalStatusRejected, enums.WithdrawalStatusApproved:
		return current == enums.WithdrawalStatusPending
	case enums.WithdrawalStatusProcessing:
		return current == enums.WithdrawalStatusApproved
	case enums.WithdrawalStatusCompleted:
		return current == enums.WithdrawalStatusApproved || current == enums.WithdrawalStatusProcessing
	default:
		return false
	}
}

func (s *service) resolveWithdrawal(ctx context.Context, requestID uuid.UUID, target enums.WithdrawalStatus, res withdrawalResolution) (*models.WithdrawalRequest, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal request id required")
	}
	if res.actor == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var resolved *models.WithdrawalRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		request, err := repo.FindWithdrawalForUpdate(ctx, requestID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal request")
		}
		if res.owner != nil && request.UserID != *res.owner {
			return pkgerrors.New(pkgerrors.CodeForbidden, "withdrawal request does not belong to user")
		}
		if !canTransitionWithdrawal(request.Status, target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("withdrawal request cannot move from %s to %s", request.Status, target))
		}

		var processedBy *uuid.UUID
		if res.processed {
			actor := res.actor
			processedBy = &actor
		}
		now := s.now().UTC()
		if err := repo.UpdateWithdrawalStatus(ctx, request.ID, target, processedBy, res.note, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update withdrawal status")
		}

		if res.recredit {
			actor := res.actor
			if _, err := s.CreditTx(ctx, tx, CreditInput{
				UserID:      request.UserID,
				Type:        enums.WalletTxnCreditRefund,
				AmountCents: request.AmountCents,
				Description: res.reason,
				ActorID:     &actor,
			}); err != nil {
				return err
			}
		}

		request.Status = target
		request.UpdatedAt = now
		if res.processed {
			request.ProcessedBy = processedBy
			request.ProcessedAt = &now
		}
		if res.note != nil {
			request.Note = res.note
		}
		resolved = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *service) ListWithdrawals(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error) {
	if userID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	requests, cursor, err := s.repo.ListWithdrawalsByUser(ctx, userID, params)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawal requests")
	}
	return requests, cursor, nil
}

func (s *service) ListWithdrawalsByStatus(ctx context.Context, status enums.WithdrawalStatus, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error) {
	if !status.IsValid() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid withdrawal status %q", status))
	}
	requests, cursor, err := s.repo.ListWithdrawalsByStatus(ctx, status, params)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawal requests")
	}
	return requests, cursor, nil
}

func (s *service) recordOp(txnType enums.WalletTransactionType, outcome string) {
	s.metrics.IncWalletOp(txnType.String(), outcome)
}

func validateLedgerInput(userID uuid.UUID, txnType enums.WalletTransactionType, amountCents int64, wantCredit bool) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !txnType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid wallet transaction type %q", txnType))
	}
	if txnType.IsCredit() != wantCredit {
		if wantCredit {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not a credit type", txnType))
		}
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not a debit type", txnType))
	}
	if amountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return nil
}
