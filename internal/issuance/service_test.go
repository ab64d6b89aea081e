package issuance_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rezonia/invoice-engine/internal/issuance"
	"github.com/rezonia/invoice-engine/internal/issuance/store"
	"github.com/rezonia/invoice-engine/internal/model"
	"github.com/rezonia/invoice-engine/internal/signature"
)

const issuerTRN = "100123456700003"

func newInvoice(number string) *model.Invoice {
	return &model.Invoice{
		Number:       number,
		Type:         model.InvoiceTypeStandard,
		IssueDate:    model.NewDate(2025, 3, 10),
		Currency:     "AED",
		Issuer:       model.Party{Name: "Gulf Trading LLC", TaxID: issuerTRN, City: "Dubai"},
		Counterparty: model.Party{Name: "Desert Supplies FZE", TaxID: "100987654300003"},
		Lines: []model.LineItem{
			{Sequence: 1, Name: "Consulting", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("500"), TaxCode: "SR"},
		},
	}
}

func newEngine(t *testing.T) *signature.Engine {
	t.Helper()
	e, err := signature.NewEngine(context.Background(), signature.Options{})
	require.NoError(t, err)
	return e
}

func certifiedEngine(t *testing.T) *signature.Engine {
	t.Helper()
	pair, err := signature.GenerateKeyPair(0)
	require.NoError(t, err)
	cert, err := signature.GenerateSelfSignedCertificate(pair.PrivateKeyPEM, signature.CertificateRequest{CommonName: "Gulf Trading LLC"})
	require.NoError(t, err)

	e, err := signature.NewEngine(context.Background(), signature.Options{
		PrivateKeyPEM:  pair.PrivateKeyPEM,
		CertificatePEM: cert,
	})
	require.NoError(t, err)
	return e
}

func TestService_Issue(t *testing.T) {
	svc := issuance.NewService(store.NewMemory(), newEngine(t), zerolog.Nop())

	out, err := svc.Issue(context.Background(), newInvoice("INV-0001"))
	require.NoError(t, err)
	require.True(t, out.OK(), "errors: %v", out.Errors)

	a := out.Issued.Artifact
	assert.Equal(t, int64(1), a.Sequence)
	assert.Equal(t, signature.GenesisHash, a.PreviousChainHash)
	assert.Equal(t, model.SigningModeUncertified, a.Mode)
	assert.Equal(t, signature.MockCertificateSerial, a.CertificateSerial)
	assert.Equal(t, "sha256", a.HashAlgorithm)
	assert.NotEmpty(t, a.Document)
	assert.True(t, out.Issued.Invoice.GrossAmount.Equal(decimal.RequireFromString("5250")))

	second, err := svc.Issue(context.Background(), newInvoice("INV-0002"))
	require.NoError(t, err)
	require.True(t, second.OK())
	assert.Equal(t, int64(2), second.Issued.Artifact.Sequence)
	assert.Equal(t, a.ChainHash, second.Issued.Artifact.PreviousChainHash)

	found, err := svc.Find(context.Background(), issuerTRN, "INV-0002")
	require.NoError(t, err)
	assert.Equal(t, second.Issued.Artifact.ChainHash, found.Artifact.ChainHash)

	_, err = svc.Find(context.Background(), issuerTRN, "INV-9999")
	assert.ErrorIs(t, err, issuance.ErrNotFound)
}

func TestService_IssueValidationFailure(t *testing.T) {
	svc := issuance.NewService(store.NewMemory(), newEngine(t), zerolog.Nop())

	inv := newInvoice("INV-0001")
	inv.Issuer.TaxID = "12345"
	inv.Lines[0].TaxCode = "XX"

	out, err := svc.Issue(context.Background(), inv)
	require.NoError(t, err)
	assert.False(t, out.OK())
	assert.Nil(t, out.Issued)
	assert.True(t, out.Errors.Has("", model.RuleTaxCode))

	inv.Lines[0].TaxCode = "SR"
	out, err = svc.Issue(context.Background(), inv)
	require.NoError(t, err)
	assert.True(t, out.Errors.Has("issuer.tax_id", model.RuleTRNFormat))

	history, err := svc.History(context.Background(), "12345")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_IssueDuplicateNumber(t *testing.T) {
	svc := issuance.NewService(store.NewMemory(), newEngine(t), zerolog.Nop())

	_, err := svc.Issue(context.Background(), newInvoice("INV-0001"))
	require.NoError(t, err)

	out, err := svc.Issue(context.Background(), newInvoice("INV-0001"))
	require.NoError(t, err)
	assert.False(t, out.OK())
	assert.True(t, out.Errors.Has("number", model.RuleDuplicate))
}

func TestService_ConcurrentIssueKeepsLinearChain(t *testing.T) {
	engine := newEngine(t)
	svc := issuance.NewService(store.NewMemory(), engine, zerolog.Nop())

	const n = 25
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.Issue(context.Background(), newInvoice(fmt.Sprintf("INV-%04d", i)))
			if assert.NoError(t, err) {
				assert.True(t, out.OK(), "errors: %v", out.Errors)
			}
		}(i)
	}
	wg.Wait()

	history, err := svc.History(context.Background(), issuerTRN)
	require.NoError(t, err)
	require.Len(t, history, n)

	previous := make(map[string]bool)
	for i, issued := range history {
		assert.Equal(t, int64(i+1), issued.Artifact.Sequence)
		assert.False(t, previous[issued.Artifact.PreviousChainHash], "chain forked at %d", i)
		previous[issued.Artifact.PreviousChainHash] = true
	}

	report, err := svc.VerifyIssuerChain(context.Background(), issuerTRN)
	require.NoError(t, err)
	assert.Equal(t, n, report.Length)
	assert.Equal(t, history[n-1].Artifact.ChainHash, report.HeadChainHash)
}

func TestService_IssuersHaveIndependentChains(t *testing.T) {
	svc := issuance.NewService(store.NewMemory(), newEngine(t), zerolog.Nop())

	a, err := svc.Issue(context.Background(), newInvoice("INV-0001"))
	require.NoError(t, err)

	other := newInvoice("INV-0001")
	other.Issuer.TaxID = "100555555500003"
	b, err := svc.Issue(context.Background(), other)
	require.NoError(t, err)
	require.True(t, b.OK(), "errors: %v", b.Errors)

	assert.Equal(t, signature.GenesisHash, a.Issued.Artifact.PreviousChainHash)
	assert.Equal(t, signature.GenesisHash, b.Issued.Artifact.PreviousChainHash)
	assert.Equal(t, int64(1), b.Issued.Artifact.Sequence)
}

// alteredRepository alters one invoice of every history it returns, as if
// the stored row had been edited after issuance
type alteredRepository struct {
	*store.Memory
	index  int
	mutate func(*model.IssuedInvoice)
}

func (r *alteredRepository) History(ctx context.Context, issuerTaxID string) ([]*model.IssuedInvoice, error) {
	history, err := r.Memory.History(ctx, issuerTaxID)
	if err != nil || r.mutate == nil {
		return history, err
	}
	r.mutate(history[r.index])
	return history, nil
}

func (r *alteredRepository) alter(index int, mutate func(*model.IssuedInvoice)) {
	r.index, r.mutate = index, mutate
}

func TestService_VerifyIssuerChainDetectsTampering(t *testing.T) {
	mem := &alteredRepository{Memory: store.NewMemory()}
	svc := issuance.NewService(mem, certifiedEngine(t), zerolog.Nop())

	for i := 1; i <= 3; i++ {
		out, err := svc.Issue(context.Background(), newInvoice(fmt.Sprintf("INV-%04d", i)))
		require.NoError(t, err)
		require.True(t, out.OK())
	}

	report, err := svc.VerifyIssuerChain(context.Background(), issuerTRN)
	require.NoError(t, err)
	assert.Equal(t, 3, report.SignaturesVerified)

	mem.alter(1, func(issued *model.IssuedInvoice) {
		issued.Invoice.GrossAmount = issued.Invoice.GrossAmount.Add(decimal.NewFromInt(100))
	})

	_, err = svc.VerifyIssuerChain(context.Background(), issuerTRN)
	var chainErr *signature.ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, 1, chainErr.Index)
	assert.Equal(t, "INV-0002", chainErr.InvoiceNumber)
}

func TestService_VerifyIssuerChainDetectsForgedSignature(t *testing.T) {
	mem := &alteredRepository{Memory: store.NewMemory()}
	engine := certifiedEngine(t)
	svc := issuance.NewService(mem, engine, zerolog.Nop())

	_, err := svc.Issue(context.Background(), newInvoice("INV-0001"))
	require.NoError(t, err)

	forger := newEngine(t)
	mem.alter(0, func(issued *model.IssuedInvoice) {
		sig, err := forger.Sign(issued.Artifact.ChainHash, issued.Artifact.ContentHash)
		require.NoError(t, err)
		issued.Artifact.Signature = sig
	})

	_, err = svc.VerifyIssuerChain(context.Background(), issuerTRN)
	var chainErr *signature.ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, "signature invalid", chainErr.Reason)
}

func TestService_IssueRepositoryFailures(t *testing.T) {
	storageErr := errors.New("connection reset")

	type testCase struct {
		name      string
		setupMock func(repo *issuance.MockRepository, tx *issuance.MockIssueTx)
		wantErr   bool
		wantRule  string
	}

	tests := []testCase{
		{
			name: "BeginFails",
			setupMock: func(repo *issuance.MockRepository, tx *issuance.MockIssueTx) {
				repo.EXPECT().BeginIssue(gomock.Any(), issuerTRN).Return(nil, storageErr)
			},
			wantErr: true,
		},
		{
			name: "DuplicateNumber",
			setupMock: func(repo *issuance.MockRepository, tx *issuance.MockIssueTx) {
				repo.EXPECT().BeginIssue(gomock.Any(), issuerTRN).Return(tx, nil)
				tx.EXPECT().Exists(gomock.Any(), "INV-0001").Return(true, nil)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantRule: model.RuleDuplicate,
		},
		{
			name: "SaveFails",
			setupMock: func(repo *issuance.MockRepository, tx *issuance.MockIssueTx) {
				repo.EXPECT().BeginIssue(gomock.Any(), issuerTRN).Return(tx, nil)
				tx.EXPECT().Exists(gomock.Any(), "INV-0001").Return(false, nil)
				tx.EXPECT().Head(gomock.Any()).Return(issuance.ChainHead{}, nil)
				tx.EXPECT().Save(gomock.Any(), gomock.Any()).Return(storageErr)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr: true,
		},
		{
			name: "SaveReportsDuplicate",
			setupMock: func(repo *issuance.MockRepository, tx *issuance.MockIssueTx) {
				repo.EXPECT().BeginIssue(gomock.Any(), issuerTRN).Return(tx, nil)
				tx.EXPECT().Exists(gomock.Any(), "INV-0001").Return(false, nil)
				tx.EXPECT().Head(gomock.Any()).Return(issuance.ChainHead{ChainHash: "abc", Sequence: 4}, nil)
				tx.EXPECT().Save(gomock.Any(), gomock.Any()).Return(issuance.ErrDuplicate)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantRule: model.RuleDuplicate,
		},
		{
			name: "CommitFails",
			setupMock: func(repo *issuance.MockRepository, tx *issuance.MockIssueTx) {
				repo.EXPECT().BeginIssue(gomock.Any(), issuerTRN).Return(tx, nil)
				tx.EXPECT().Exists(gomock.Any(), "INV-0001").Return(false, nil)
				tx.EXPECT().Head(gomock.Any()).Return(issuance.ChainHead{ChainHash: "abc", Sequence: 4}, nil)
				tx.EXPECT().Save(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, issued *model.IssuedInvoice) error {
						assert.Equal(t, int64(5), issued.Artifact.Sequence)
						assert.Equal(t, "abc", issued.Artifact.PreviousChainHash)
						return nil
					})
				tx.EXPECT().Commit().Return(storageErr)
				tx.EXPECT().Rollback().Return(nil)
			},
			wantErr: true,
		},
	}

	engine := newEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := issuance.NewMockRepository(ctrl)
			tx := issuance.NewMockIssueTx(ctrl)
			tt.setupMock(repo, tx)

			svc := issuance.NewService(repo, engine, zerolog.Nop())
			out, err := svc.Issue(context.Background(), newInvoice("INV-0001"))

			if tt.wantErr {
				assert.ErrorIs(t, err, storageErr)
				assert.Nil(t, out)
				return
			}

			require.NoError(t, err)
			assert.True(t, out.Errors.Has("number", tt.wantRule))
		})
	}
}
