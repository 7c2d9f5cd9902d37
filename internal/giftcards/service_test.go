package giftcards

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velmora/storefront-backend/internal/wallet"
	"github.com/velmora/storefront-backend/pkg/config"
	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/pagination"
	"github.com/velmora/storefront-backend/pkg/security"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRepo struct {
	cards map[uuid.UUID]*models.GiftCard
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{cards: map[uuid.UUID]*models.GiftCard{}}
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, card *models.GiftCard) error {
	f.cards[card.ID] = card
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, cardID uuid.UUID) (*models.GiftCard, error) {
	card, ok := f.cards[cardID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *card
	return &copied, nil
}

func (f *fakeRepo) FindByIDForUpdate(ctx context.Context, cardID uuid.UUID) (*models.GiftCard, error) {
	return f.FindByID(ctx, cardID)
}

func (f *fakeRepo) FindByCode(ctx context.Context, code string) (*models.GiftCard, error) {
	for _, card := range f.cards {
		if card.Code == code {
			copied := *card
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindByCodeForUpdate(ctx context.Context, code string) (*models.GiftCard, error) {
	return f.FindByCode(ctx, code)
}

func (f *fakeRepo) Update(ctx context.Context, cardID uuid.UUID, updates map[string]any) error {
	card, ok := f.cards[cardID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if status, ok := updates["status"]; ok {
		card.Status = status.(enums.GiftCardStatus)
	}
	if redeemedBy, ok := updates["redeemed_by"]; ok {
		id := redeemedBy.(uuid.UUID)
		card.RedeemedBy = &id
	}
	return nil
}

func (f *fakeRepo) ListByPurchaser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.GiftCard, *pagination.Cursor, error) {
	var cards []models.GiftCard
	for _, card := range f.cards {
		if card.PurchasedBy == userID {
			cards = append(cards, *card)
		}
	}
	return cards, nil, nil
}

type walletCall struct {
	userID uuid.UUID
	txn    enums.WalletTransactionType
	amount int64
}

type fakeWallet struct {
	debits    []walletCall
	credits   []walletCall
	debitErr  error
	creditErr error
}

func (f *fakeWallet) DebitTx(ctx context.Context, tx *gorm.DB, input wallet.DebitInput) (*models.WalletTransaction, error) {
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	f.debits = append(f.debits, walletCall{userID: input.UserID, txn: input.Type, amount: input.AmountCents})
	return &models.WalletTransaction{}, nil
}

func (f *fakeWallet) CreditTx(ctx context.Context, tx *gorm.DB, input wallet.CreditInput) (*models.WalletTransaction, error) {
	if f.creditErr != nil {
		return nil, f.creditErr
	}
	f.credits = append(f.credits, walletCall{userID: input.UserID, txn: input.Type, amount: input.AmountCents})
	return &models.WalletTransaction{}, nil
}

func testArgonConfig() config.ArgonConfig {
	return config.ArgonConfig{MemoryKB: 8192, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}
}

func newTestService(t *testing.T, repo *fakeRepo, walletSvc *fakeWallet, bonusPercent string) Service {
	t.Helper()
	svc, err := NewService(repo, walletSvc, stubTxRunner{}, config.GiftCardsConfig{BonusPercent: bonusPercent}, testArgonConfig())
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func TestPurchaseIssuesCard(t *testing.T) {
	repo := newFakeRepo()
	walletSvc := &fakeWallet{}
	svc := newTestService(t, repo, walletSvc, "10")

	buyer := uuid.New()
	result, err := svc.Purchase(context.Background(), PurchaseInput{UserID: buyer, FaceValueCents: 5000})
	if err != nil {
		t.Fatalf("Purchase error: %v", err)
	}

	if !strings.HasPrefix(result.Code, "GC-") {
		t.Fatalf("code = %q, want GC- prefix", result.Code)
	}
	if len(result.PIN) != pinDigits {
		t.Fatalf("pin length = %d, want %d", len(result.PIN), pinDigits)
	}
	if result.Card.BonusCents != 500 {
		t.Fatalf("bonus = %d, want 500", result.Card.BonusCents)
	}
	if result.Card.Status != enums.GiftCardStatusActive {
		t.Fatalf("status = %s, want active", result.Card.Status)
	}

	// the returned PIN must verify against the stored hash
	stored := repo.cards[result.Card.ID]
	ok, err := security.VerifySecret(result.PIN, stored.PINHash)
	if err != nil || !ok {
		t.Fatalf("pin must verify against stored hash: ok=%v err=%v", ok, err)
	}

	if len(walletSvc.debits) != 1 {
		t.Fatalf("wallet debits = %d, want 1", len(walletSvc.debits))
	}
	debit := walletSvc.debits[0]
	if debit.userID != buyer || debit.amount != 5000 || debit.txn != enums.WalletTxnDebitOrder {
		t.Fatalf("unexpected debit: %+v", debit)
	}
}

func TestPurchaseBonusRoundsToCents(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeWallet{}, "2.5")

	result, err := svc.Purchase(context.Background(), PurchaseInput{UserID: uuid.New(), FaceValueCents: 1001})
	if err != nil {
		t.Fatalf("Purchase error: %v", err)
	}
	// 1001 * 2.5% = 25.025, rounds to 25
	if result.Card.BonusCents != 25 {
		t.Fatalf("bonus = %d, want 25", result.Card.BonusCents)
	}
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	repo := newFakeRepo()
	walletSvc := &fakeWallet{debitErr: pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient wallet balance")}
	svc := newTestService(t, repo, walletSvc, "0")

	_, err := svc.Purchase(context.Background(), PurchaseInput{UserID: uuid.New(), FaceValueCents: 5000})
	if !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(repo.cards) != 0 {
		t.Fatal("no card must be issued when the debit fails")
	}
}

func TestPurchaseValidation(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeWallet{}, "0")

	if _, err := svc.Purchase(context.Background(), PurchaseInput{UserID: uuid.New(), FaceValueCents: 0}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("zero face value must be rejected, got %v", err)
	}
	if _, err := svc.Purchase(context.Background(), PurchaseInput{FaceValueCents: 100}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("missing user must be rejected, got %v", err)
	}
}

func TestNewServiceRejectsBadBonus(t *testing.T) {
	if _, err := NewService(newFakeRepo(), &fakeWallet{}, stubTxRunner{}, config.GiftCardsConfig{BonusPercent: "-1"}, testArgonConfig()); err == nil {
		t.Fatal("negative bonus percent must be rejected")
	}
	if _, err := NewService(newFakeRepo(), &fakeWallet{}, stubTxRunner{}, config.GiftCardsConfig{BonusPercent: "ten"}, testArgonConfig()); err == nil {
		t.Fatal("unparseable bonus percent must be rejected")
	}
}

func purchaseCard(t *testing.T, svc Service, buyer uuid.UUID, face int64) *PurchaseResult {
	t.Helper()
	result, err := svc.Purchase(context.Background(), PurchaseInput{UserID: buyer, FaceValueCents: face})
	if err != nil {
		t.Fatalf("Purchase error: %v", err)
	}
	return result
}

func TestRedeemCreditsRecipient(t *testing.T) {
	repo := newFakeRepo()
	walletSvc := &fakeWallet{}
	svc := newTestService(t, repo, walletSvc, "10")

	buyer := uuid.New()
	recipient := uuid.New()
	issued := purchaseCard(t, svc, buyer, 5000)

	result, err := svc.Redeem(context.Background(), RedeemInput{UserID: recipient, Code: issued.Code, PIN: issued.PIN})
	if err != nil {
		t.Fatalf("Redeem error: %v", err)
	}

	// face value plus promotional bonus
	if result.CreditedCents != 5500 {
		t.Fatalf("credited = %d, want 5500", result.CreditedCents)
	}
	if result.Card.Status != enums.GiftCardStatusRedeemed {
		t.Fatalf("status = %s, want redeemed", result.Card.Status)
	}
	if result.Card.RedeemedBy == nil || *result.Card.RedeemedBy != recipient {
		t.Fatal("redeemed_by not recorded")
	}
	if len(walletSvc.credits) != 1 {
		t.Fatalf("wallet credits = %d, want 1", len(walletSvc.credits))
	}
	credit := walletSvc.credits[0]
	if credit.userID != recipient || credit.amount != 5500 || credit.txn != enums.WalletTxnCreditManual {
		t.Fatalf("unexpected credit: %+v", credit)
	}
}

func TestRedeemNormalizesCode(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeWallet{}, "0")

	issued := purchaseCard(t, svc, uuid.New(), 1000)
	lowered := "  " + strings.ToLower(issued.Code) + " "

	if _, err := svc.Redeem(context.Background(), RedeemInput{UserID: uuid.New(), Code: lowered, PIN: issued.PIN}); err != nil {
		t.Fatalf("lowercased code must still redeem: %v", err)
	}
}

func TestRedeemOnlyOnce(t *testing.T) {
	repo := newFakeRepo()
	walletSvc := &fakeWallet{}
	svc := newTestService(t, repo, walletSvc, "0")

	issued := purchaseCard(t, svc, uuid.New(), 1000)
	input := RedeemInput{UserID: uuid.New(), Code: issued.Code, PIN: issued.PIN}

	if _, err := svc.Redeem(context.Background(), input); err != nil {
		t.Fatalf("first redeem error: %v", err)
	}
	if _, err := svc.Redeem(context.Background(), input); !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("second redeem must conflict, got %v", err)
	}
	if len(walletSvc.credits) != 1 {
		t.Fatalf("wallet credits = %d, want exactly 1", len(walletSvc.credits))
	}
}

func TestRedeemWrongPIN(t *testing.T) {
	repo := newFakeRepo()
	walletSvc := &fakeWallet{}
	svc := newTestService(t, repo, walletSvc, "0")

	issued := purchaseCard(t, svc, uuid.New(), 1000)

	_, err := svc.Redeem(context.Background(), RedeemInput{UserID: uuid.New(), Code: issued.Code, PIN: "000000x"})
	if !pkgerrors.Is(err, pkgerrors.CodeForbidden) {
		t.Fatalf("wrong pin must be forbidden, got %v", err)
	}
	if repo.cards[issued.Card.ID].Status != enums.GiftCardStatusActive {
		t.Fatal("card must stay active after a failed pin check")
	}
	if len(walletSvc.credits) != 0 {
		t.Fatal("no credit must be issued on a failed pin check")
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeWallet{}, "0")

	_, err := svc.Redeem(context.Background(), RedeemInput{UserID: uuid.New(), Code: "GC-ZZZZ-ZZZZ-ZZZZ", PIN: "123456"})
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVoidRecreditsPurchaser(t *testing.T) {
	repo := newFakeRepo()
	walletSvc := &fakeWallet{}
	svc := newTestService(t, repo, walletSvc, "0")

	buyer := uuid.New()
	issued := purchaseCard(t, svc, buyer, 2500)

	admin := uuid.New()
	voided, err := svc.Void(context.Background(), admin, issued.Card.ID)
	if err != nil {
		t.Fatalf("Void error: %v", err)
	}
	if voided.Status != enums.GiftCardStatusVoided {
		t.Fatalf("status = %s, want voided", voided.Status)
	}
	if len(walletSvc.credits) != 1 {
		t.Fatalf("wallet credits = %d, want 1", len(walletSvc.credits))
	}
	credit := walletSvc.credits[0]
	if credit.userID != buyer || credit.amount != 2500 || credit.txn != enums.WalletTxnCreditRefund {
		t.Fatalf("unexpected recredit: %+v", credit)
	}

	// voided cards no longer redeem
	if _, err := svc.Redeem(context.Background(), RedeemInput{UserID: uuid.New(), Code: issued.Code, PIN: issued.PIN}); !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("voided card must not redeem, got %v", err)
	}
}

func TestVoidRedeemedCard(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeWallet{}, "0")

	issued := purchaseCard(t, svc, uuid.New(), 1000)
	if _, err := svc.Redeem(context.Background(), RedeemInput{UserID: uuid.New(), Code: issued.Code, PIN: issued.PIN}); err != nil {
		t.Fatalf("redeem error: %v", err)
	}
	if _, err := svc.Void(context.Background(), uuid.New(), issued.Card.ID); !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("redeemed card must not be voidable, got %v", err)
	}
}

func TestGetOwnership(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeWallet{}, "0")

	buyer := uuid.New()
	issued := purchaseCard(t, svc, buyer, 1000)

	if _, err := svc.Get(context.Background(), buyer, issued.Card.ID, false); err != nil {
		t.Fatalf("owner must read their card: %v", err)
	}
	if _, err := svc.Get(context.Background(), uuid.New(), issued.Card.ID, false); !pkgerrors.Is(err, pkgerrors.CodeForbidden) {
		t.Fatalf("stranger must be forbidden, got %v", err)
	}
	if _, err := svc.Get(context.Background(), uuid.New(), issued.Card.ID, true); err != nil {
		t.Fatalf("admin must read any card: %v", err)
	}
	if _, err := svc.Get(context.Background(), buyer, uuid.New(), false); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("unknown card must be not found, got %v", err)
	}
}

func TestCodeGeneration(t *testing.T) {
	code, err := generateCode()
	if err != nil {
		t.Fatalf("generateCode error: %v", err)
	}
	parts := strings.Split(code, "-")
	if len(parts) != codeGroups+1 || parts[0] != "GC" {
		t.Fatalf("code = %q, want GC plus %d groups", code, codeGroups)
	}
	for _, part := range parts[1:] {
		if len(part) != codeGroupSize {
			t.Fatalf("group %q has wrong size", part)
		}
		for i := 0; i < len(part); i++ {
			if !strings.ContainsRune(codeAlphabet, rune(part[i])) {
				t.Fatalf("code %q contains character outside the alphabet", code)
			}
		}
	}

	pin, err := generatePIN()
	if err != nil {
		t.Fatalf("generatePIN error: %v", err)
	}
	if len(pin) != pinDigits {
		t.Fatalf("pin %q has wrong length", pin)
	}
}
