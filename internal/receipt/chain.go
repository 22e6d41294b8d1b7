// Package receipt builds, signs, appends and verifies the per-pointer chain
// of receipts. Every receipt commits to its predecessor's hash, so altering
// or removing any receipt breaks verification of everything after it.
package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"veto/internal/crypto"
	pointermodels "veto/internal/pointer/models"
	"veto/internal/platform/metrics"
	"veto/internal/receipt/models"
	"veto/internal/storage"
	"veto/pkg/canonical"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
	"veto/pkg/platform/sentinel"
)

// SignatureVerifier checks a signature produced under a named algorithm.
type SignatureVerifier interface {
	Verify(alg crypto.Algorithm, keyID string, digest crypto.Digest, signature []byte) error
}

// Signature is a signature together with the parameters needed to check it.
type Signature struct {
	Bytes     []byte
	Algorithm crypto.Algorithm
	KeyID     string
}

// Chain owns receipt construction. It is safe for concurrent use; the signer
// it holds is immutable.
type Chain struct {
	hasher    crypto.Hasher
	signer    crypto.Signer
	verifiers SignatureVerifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Chain)

func WithHasher(h crypto.Hasher) Option {
	return func(c *Chain) {
		c.hasher = h
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Chain) {
		c.metrics = m
	}
}

func New(signer crypto.Signer, verifiers SignatureVerifier, opts ...Option) *Chain {
	c := &Chain{
		hasher:    crypto.DefaultHasher,
		signer:    signer,
		verifiers: verifiers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hash digests a canonical form.
func (c *Chain) Hash(form CanonicalForm) crypto.Digest {
	return c.hasher.Sum(form)
}

// Sign signs a digest with the chain's key.
func (c *Chain) Sign(digest crypto.Digest) (*Signature, error) {
	if c.signer == nil {
		return nil, dErrors.New(dErrors.CodeSigningFailure, "no signing key configured")
	}
	sig, err := c.signer.Sign(digest)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSigningFailure, "failed to sign receipt")
	}
	return &Signature{Bytes: sig, Algorithm: c.signer.Algorithm(), KeyID: c.signer.KeyID()}, nil
}

// Append builds the next receipt for p and persists it. It must run inside
// the caller's transaction after p's row lock is taken, so that reading the
// latest receipt and writing its successor cannot interleave with another
// writer on the same pointer.
func (c *Chain) Append(ctx context.Context, receipts storage.ReceiptStore, p *pointermodels.Pointer, op models.Operation, at time.Time, fields ...Field) (*models.Receipt, error) {
	seq := int64(0)
	prev := models.Link{}
	latest, err := receipts.Latest(ctx, p.ID)
	switch {
	case err == nil:
		seq = latest.Seq + 1
		prev = models.LinkTo(latest.Hash)
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return nil, storage.Translate(err, "receipt")
	}

	at = at.UTC().Truncate(time.Microsecond)
	form, err := Canonicalize(Event{
		Operation: op,
		Pointer:   p,
		Seq:       seq,
		Timestamp: at,
		Prev:      prev,
		Fields:    fields,
	})
	if err != nil {
		return nil, err
	}

	digest := c.Hash(form)
	sig, err := c.Sign(digest)
	if err != nil {
		if c.logger != nil {
			c.logger.ErrorContext(ctx, "receipt signing failed",
				"pointer_id", p.ID.String(),
				"operation", string(op),
				"error", err,
			)
		}
		return nil, err
	}

	r := &models.Receipt{
		ID:                 id.NewReceiptID(),
		PointerID:          p.ID,
		OrgID:              p.OrgID,
		Operation:          op,
		Seq:                seq,
		CanonicalForm:      form,
		Hash:               digest.Hex(),
		Signature:          sig.Bytes,
		SignatureAlgorithm: sig.Algorithm,
		KeyID:              sig.KeyID,
		PrevHash:           prev,
		Timestamp:          at,
		Metadata:           fieldMap(fields),
	}
	if err := receipts.Append(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "receipt chain was extended concurrently")
		}
		return nil, storage.Translate(err, "receipt")
	}
	if c.metrics != nil {
		c.metrics.IncrementReceiptsIssued(string(op))
	}
	return r, nil
}

func fieldMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[canonical.NormalizeString(f.Name)] = f.Value
	}
	return m
}

// VerifyChain walks the pointer's receipts in seq order and reports the
// first break. An empty chain is not valid: every pointer is born with a
// create receipt.
func (c *Chain) VerifyChain(ctx context.Context, receipts storage.ReceiptStore, pointerID id.PointerID) (*models.Verification, error) {
	chain, err := receipts.ListByPointer(ctx, pointerID)
	if err != nil {
		return nil, storage.Translate(err, "receipt")
	}
	v := &models.Verification{PointerID: pointerID, Length: len(chain)}
	if len(chain) == 0 {
		v.Reason = "chain is empty"
		return v, nil
	}

	var prev *models.Receipt
	for i, r := range chain {
		if reason := c.verifyReceipt(r, prev, int64(i)); reason != "" {
			at := int64(i)
			v.BrokenAt = &at
			v.Reason = reason
			if c.metrics != nil {
				c.metrics.IncrementChainVerificationFailures()
			}
			return v, nil
		}
		prev = r
	}
	v.Valid = true
	return v, nil
}

func (c *Chain) verifyReceipt(r, prev *models.Receipt, want int64) string {
	if r.Seq != want {
		return fmt.Sprintf("sequence gap: expected seq %d, found %d", want, r.Seq)
	}
	if prev == nil {
		if r.PrevHash.Valid {
			return "first receipt carries a prev_hash"
		}
		if r.Operation != models.OperationCreate {
			return "chain does not start with a create receipt"
		}
	} else {
		if !r.PrevHash.Valid || r.PrevHash.Hash != prev.Hash {
			return "prev_hash does not match preceding receipt"
		}
		if prev.Operation == models.OperationOrphan {
			return "receipt follows an orphan receipt"
		}
	}

	digest := c.Hash(r.CanonicalForm)
	if digest.Hex() != r.Hash {
		return "hash does not match canonical form"
	}
	if reason := checkHeader(r); reason != "" {
		return reason
	}
	if c.verifiers == nil {
		return "no signature verifier configured"
	}
	if err := c.verifiers.Verify(r.SignatureAlgorithm, r.KeyID, digest, r.Signature); err != nil {
		return "invalid signature: " + err.Error()
	}
	return ""
}

// checkHeader confirms the stored columns agree with what was hashed.
func checkHeader(r *models.Receipt) string {
	var h canonicalHeader
	dec := json.NewDecoder(bytes.NewReader(r.CanonicalForm))
	if err := dec.Decode(&h); err != nil {
		return "canonical form is not valid JSON"
	}
	prevMatches := (h.PrevHash == nil && !r.PrevHash.Valid) ||
		(h.PrevHash != nil && r.PrevHash.Valid && *h.PrevHash == r.PrevHash.Hash)
	switch {
	case h.Operation != string(r.Operation),
		h.PointerID != r.PointerID.String(),
		h.OrgID != r.OrgID.String(),
		h.Seq != r.Seq,
		h.Timestamp != canonical.FormatTime(r.Timestamp),
		!prevMatches:
		return "receipt columns do not match canonical form"
	}
	return ""
}
