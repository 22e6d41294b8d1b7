package receipt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veto/internal/crypto"
	pointermodels "veto/internal/pointer/models"
	"veto/internal/receipt/models"
	"veto/internal/storage"
	"veto/internal/storage/memory"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
)

type ChainSuite struct {
	suite.Suite
	ctx     context.Context
	db      *memory.DB
	signer  *crypto.Ed25519Signer
	chain   *Chain
	pointer *pointermodels.Pointer
	now     time.Time
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func (s *ChainSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = memory.New()
	signer, err := crypto.GenerateEd25519Signer()
	s.Require().NoError(err)
	s.signer = signer
	s.chain = New(signer, crypto.RegistryFor(signer))
	s.now = time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC)

	stores := s.db.Stores()
	org, err := pointermodels.NewOrganization(id.NewOrgID(), "Acme", s.now)
	s.Require().NoError(err)
	s.Require().NoError(stores.Orgs.Create(s.ctx, org))
	data, err := pointermodels.NewDataObject(id.NewDataID(), org.ID, "user_demo_001", "sha256:abc", nil, s.now)
	s.Require().NoError(err)
	_, _, err = stores.Data.FindOrCreate(s.ctx, data)
	s.Require().NoError(err)
	p, err := pointermodels.NewPointer(id.NewPointerID(), data, s.now)
	s.Require().NoError(err)
	s.Require().NoError(stores.Pointers.Create(s.ctx, p))
	s.pointer = p
}

func (s *ChainSuite) appendOp(op models.Operation, at time.Time, fields ...Field) *models.Receipt {
	var r *models.Receipt
	err := s.db.RunInTx(s.ctx, func(ctx context.Context, st storage.Stores) error {
		var err error
		r, err = s.chain.Append(ctx, st.Receipts, s.pointer, op, at, fields...)
		return err
	})
	s.Require().NoError(err)
	return r
}

func (s *ChainSuite) TestCanonicalize() {
	base := Event{
		Operation: models.OperationOrphan,
		Pointer:   s.pointer,
		Seq:       1,
		Timestamp: s.now,
		Prev:      models.LinkTo("abc"),
	}

	s.Run("field order does not change the form", func() {
		a := base
		a.Fields = []Field{F("reason", "user_consent_revoked"), F("actor", "ops")}
		b := base
		b.Fields = []Field{F("actor", "ops"), F("reason", "user_consent_revoked")}

		formA, err := Canonicalize(a)
		s.Require().NoError(err)
		formB, err := Canonicalize(b)
		s.Require().NoError(err)
		s.Equal(formA, formB)
	})

	s.Run("timestamps are rendered in UTC with microseconds", func() {
		e := base
		e.Timestamp = s.now.In(time.FixedZone("X", -7*3600))
		form, err := Canonicalize(e)
		s.Require().NoError(err)
		s.Contains(string(form), `"timestamp":"2025-03-01T10:00:00.123456Z"`)
	})

	s.Run("duplicate field names are rejected", func() {
		e := base
		e.Fields = []Field{F("reason", "a"), F("reason ", "b")}
		_, err := Canonicalize(e)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("floats are rejected", func() {
		e := base
		e.Fields = []Field{F("score", 0.5)}
		_, err := Canonicalize(e)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("genesis must not link and successors must", func() {
		e := base
		e.Seq = 0
		_, err := Canonicalize(e)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		e = base
		e.Prev = models.Link{}
		_, err = Canonicalize(e)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("absent link is encoded as null", func() {
		e := base
		e.Seq = 0
		e.Prev = models.Link{}
		e.Operation = models.OperationCreate
		form, err := Canonicalize(e)
		s.Require().NoError(err)
		s.Contains(string(form), `"prev_hash":null`)
	})
}

func (s *ChainSuite) TestAppendLinksReceipts() {
	create := s.appendOp(models.OperationCreate, s.now)
	resolve := s.appendOp(models.OperationResolve, s.now.Add(time.Second))
	orphan := s.appendOp(models.OperationOrphan, s.now.Add(2*time.Second), F("reason", "user_consent_revoked"))

	s.Equal(int64(0), create.Seq)
	s.False(create.PrevHash.Valid)
	s.Equal(int64(1), resolve.Seq)
	s.Equal(models.LinkTo(create.Hash), resolve.PrevHash)
	s.Equal(int64(2), orphan.Seq)
	s.Equal(models.LinkTo(resolve.Hash), orphan.PrevHash)

	s.Len(create.Hash, 128)
	s.Equal(crypto.AlgorithmEd25519, orphan.SignatureAlgorithm)
	s.Equal(s.signer.KeyID(), orphan.KeyID)
	s.Equal("user_consent_revoked", orphan.Metadata["reason"])
	s.Equal(s.now.Truncate(time.Microsecond), create.Timestamp)
	s.Equal(crypto.DefaultHasher.Sum(orphan.CanonicalForm).Hex(), orphan.Hash)

	v, err := s.chain.VerifyChain(s.ctx, s.db.Stores().Receipts, s.pointer.ID)
	s.Require().NoError(err)
	s.True(v.Valid, v.Reason)
	s.Equal(3, v.Length)
	s.Nil(v.BrokenAt)
}

func (s *ChainSuite) TestSigningFailurePersistsNothing() {
	failing := New(failingSigner{}, crypto.RegistryFor(s.signer))
	err := s.db.RunInTx(s.ctx, func(ctx context.Context, st storage.Stores) error {
		_, err := failing.Append(ctx, st.Receipts, s.pointer, models.OperationCreate, s.now)
		return err
	})
	s.True(dErrors.HasCode(err, dErrors.CodeSigningFailure))

	list, err := s.db.Stores().Receipts.ListByPointer(s.ctx, s.pointer.ID)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *ChainSuite) TestVerifyChainDetectsTampering() {
	s.appendOp(models.OperationCreate, s.now)
	s.appendOp(models.OperationResolve, s.now.Add(time.Second))
	s.appendOp(models.OperationOrphan, s.now.Add(2*time.Second))

	cases := []struct {
		name     string
		tamper   func(rs []*models.Receipt)
		brokenAt int64
	}{
		{"altered hash", func(rs []*models.Receipt) { rs[1].Hash = rs[0].Hash }, 1},
		{"altered canonical form", func(rs []*models.Receipt) { rs[2].CanonicalForm[10] ^= 1 }, 2},
		{"altered operation column", func(rs []*models.Receipt) { rs[1].Operation = models.OperationOrphan }, 1},
		{"altered signature", func(rs []*models.Receipt) { rs[0].Signature[0] ^= 1 }, 0},
		{"removed receipt", func(rs []*models.Receipt) { rs[1] = rs[2] }, 1},
		{"unknown algorithm", func(rs []*models.Receipt) { rs[2].SignatureAlgorithm = "rsa" }, 2},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			store := &tamperingStore{ReceiptStore: s.db.Stores().Receipts, tamper: tc.tamper}
			v, err := s.chain.VerifyChain(s.ctx, store, s.pointer.ID)
			s.Require().NoError(err)
			s.False(v.Valid)
			s.Require().NotNil(v.BrokenAt)
			s.Equal(tc.brokenAt, *v.BrokenAt)
			s.NotEmpty(v.Reason)
		})
	}
}

func (s *ChainSuite) TestVerifyChainRejectsForeignKey() {
	s.appendOp(models.OperationCreate, s.now)

	other, err := crypto.GenerateEd25519Signer()
	s.Require().NoError(err)
	verifier := New(other, crypto.RegistryFor(other))

	v, err := verifier.VerifyChain(s.ctx, s.db.Stores().Receipts, s.pointer.ID)
	s.Require().NoError(err)
	s.False(v.Valid)
	s.Contains(v.Reason, "invalid signature")
}

func (s *ChainSuite) TestVerifyEmptyChain() {
	v, err := s.chain.VerifyChain(s.ctx, s.db.Stores().Receipts, id.NewPointerID())
	s.Require().NoError(err)
	s.False(v.Valid)
	s.Equal(0, v.Length)
}

type failingSigner struct{}

func (failingSigner) Algorithm() crypto.Algorithm { return crypto.AlgorithmEd25519 }
func (failingSigner) KeyID() string               { return "broken" }
func (failingSigner) Sign(crypto.Digest) ([]byte, error) {
	return nil, errors.New("hsm unavailable")
}

type tamperingStore struct {
	storage.ReceiptStore
	tamper func([]*models.Receipt)
}

func (t *tamperingStore) ListByPointer(ctx context.Context, pointerID id.PointerID) ([]*models.Receipt, error) {
	rs, err := t.ReceiptStore.ListByPointer(ctx, pointerID)
	if err != nil {
		return nil, err
	}
	t.tamper(rs)
	return rs, nil
}
