package giftcards

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/velmora/storefront-backend/internal/wallet"
	"github.com/velmora/storefront-backend/pkg/config"
	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/pagination"
	"github.com/velmora/storefront-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// walletLedger is the slice of the wallet service gift cards move money through.
type walletLedger interface {
	DebitTx(ctx context.Context, tx *gorm.DB, input wallet.DebitInput) (*models.WalletTransaction, error)
	CreditTx(ctx context.Context, tx *gorm.DB, input wallet.CreditInput) (*models.WalletTransaction, error)
}

// PurchaseInput captures a wallet-funded gift card purchase.
type PurchaseInput struct {
	UserID         uuid.UUID
	FaceValueCents int64
}

// PurchaseResult carries the issued card plus the one-time plaintext
// credentials. The PIN is never recoverable after this response.
type PurchaseResult struct {
	Card *models.GiftCard
	Code string
	PIN  string
}

// RedeemInput identifies a card by its code and PIN.
type RedeemInput struct {
	UserID uuid.UUID
	Code   string
	PIN    string
}

// RedeemResult reports the credited amount alongside the redeemed card.
type RedeemResult struct {
	Card          *models.GiftCard
	CreditedCents int64
}

// Service issues and redeems wallet-funded gift cards.
type Service interface {
	Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error)
	Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error)
	Get(ctx context.Context, userID, cardID uuid.UUID, isAdmin bool) (*models.GiftCard, error)
	ListPurchased(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.GiftCard, *pagination.Cursor, error)
	Void(ctx context.Context, adminID, cardID uuid.UUID) (*models.GiftCard, error)
}

type service struct {
	repo         Repository
	walletSvc    walletLedger
	tx           txRunner
	argon        config.ArgonConfig
	bonusPercent decimal.Decimal
	now          func() time.Time
}

// NewService wires the gift card service. The bonus percent comes from
// configuration and is validated once here.
func NewService(repo Repository, walletSvc walletLedger, tx txRunner, giftCfg config.GiftCardsConfig, argonCfg config.ArgonConfig) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gift cards repo required")
	}
	if walletSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet service required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	bonus, err := decimal.NewFromString(giftCfg.BonusPercent)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse gift card bonus percent")
	}
	if bonus.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gift card bonus percent must not be negative")
	}
	return &service{
		repo:         repo,
		walletSvc:    walletSvc,
		tx:           tx,
		argon:        argonCfg,
		bonusPercent: bonus,
		now:          time.Now,
	}, nil
}

func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.FaceValueCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "face value must be positive")
	}

	code, err := generateCode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue gift card")
	}
	pin, err := generatePIN()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue gift card")
	}
	pinHash, err := security.HashSecret(pin, s.argon)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash gift card pin")
	}

	card := &models.GiftCard{
		ID:             uuid.New(),
		Code:           code,
		PINHash:        pinHash,
		FaceValueCents: input.FaceValueCents,
		BonusCents:     s.bonusFor(input.FaceValueCents),
		Status:         enums.GiftCardStatusActive,
		PurchasedBy:    input.UserID,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.walletSvc.DebitTx(ctx, tx, wallet.DebitInput{
			UserID:      input.UserID,
			Type:        enums.WalletTxnDebitOrder,
			AmountCents: input.FaceValueCents,
			Description: "Gift card purchase",
		}); err != nil {
			return err
		}
		return s.repo.WithTx(tx).Create(ctx, card)
	})
	if err != nil {
		return nil, err
	}

	return &PurchaseResult{Card: card, Code: code, PIN: pin}, nil
}

func (s *service) Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	code := normalizeCode(input.Code)
	if code == "" || input.PIN == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code and pin are required")
	}

	var result *RedeemResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		card, err := repo.FindByCodeForUpdate(ctx, code)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gift card not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
		}

		switch card.Status {
		case enums.GiftCardStatusRedeemed:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "gift card already redeemed")
		case enums.GiftCardStatusVoided:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "gift card is voided")
		}

		ok, err := security.VerifySecret(input.PIN, card.PINHash)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify gift card pin")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeForbidden, "invalid gift card pin")
		}

		now := s.now().UTC()
		if err := repo.Update(ctx, card.ID, map[string]any{
			"status":      enums.GiftCardStatusRedeemed,
			"redeemed_by": input.UserID,
			"redeemed_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redeem gift card")
		}
		card.Status = enums.GiftCardStatusRedeemed
		card.RedeemedBy = &input.UserID
		card.RedeemedAt = &now

		credited := card.FaceValueCents + card.BonusCents
		if _, err := s.walletSvc.CreditTx(ctx, tx, wallet.CreditInput{
			UserID:      input.UserID,
			Type:        enums.WalletTxnCreditManual,
			AmountCents: credited,
			Description: "Gift card redemption",
		}); err != nil {
			return err
		}

		result = &RedeemResult{Card: card, CreditedCents: credited}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, userID, cardID uuid.UUID, isAdmin bool) (*models.GiftCard, error) {
	card, err := s.repo.FindByID(ctx, cardID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gift card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
	}
	if !isAdmin && card.PurchasedBy != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "gift card does not belong to user")
	}
	return card, nil
}

func (s *service) ListPurchased(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.GiftCard, *pagination.Cursor, error) {
	cards, next, err := s.repo.ListByPurchaser(ctx, userID, params)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list gift cards")
	}
	return cards, next, nil
}

// Void disables an unredeemed card and returns the purchase amount to the
// purchaser's wallet.
func (s *service) Void(ctx context.Context, adminID, cardID uuid.UUID) (*models.GiftCard, error) {
	var voided *models.GiftCard
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		card, err := repo.FindByIDForUpdate(ctx, cardID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gift card not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
		}
		if card.Status != enums.GiftCardStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only active gift cards can be voided")
		}

		if err := repo.Update(ctx, card.ID, map[string]any{
			"status": enums.GiftCardStatusVoided,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "void gift card")
		}
		card.Status = enums.GiftCardStatusVoided

		if _, err := s.walletSvc.CreditTx(ctx, tx, wallet.CreditInput{
			UserID:      card.PurchasedBy,
			Type:        enums.WalletTxnCreditRefund,
			AmountCents: card.FaceValueCents,
			Description: "Gift card voided",
			ActorID:     &adminID,
		}); err != nil {
			return err
		}

		voided = card
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

// bonusFor applies the configured promotional percentage, rounded to the
// nearest cent.
func (s *service) bonusFor(faceValueCents int64) int64 {
	if s.bonusPercent.IsZero() {
		return 0
	}
	return decimal.NewFromInt(faceValueCents).
		Mul(s.bonusPercent).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
