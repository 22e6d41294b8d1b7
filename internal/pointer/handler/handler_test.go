package handler

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	auditmodels "veto/internal/audit/models"
	"veto/internal/enforcement"
	"veto/internal/pointer/handler/mocks"
	"veto/internal/pointer/models"
	"veto/internal/pointer/registry"
	receiptmodels "veto/internal/receipt/models"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
	"veto/pkg/testutil"
)

var fixedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	t        *testing.T
	registry *mocks.MockRegistry
	guard    *mocks.MockGuard
	audit    *mocks.MockAuditQuery
	orgID    id.OrgID
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	env := &testEnv{
		t:        t,
		registry: mocks.NewMockRegistry(ctrl),
		guard:    mocks.NewMockGuard(ctrl),
		audit:    mocks.NewMockAuditQuery(ctrl),
		orgID:    id.NewOrgID(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(env.registry, env.guard, env.audit, env.orgID, logger)
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterAdmin(r)
	env.router = r
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	return testutil.DoRequest(e.router, testutil.NewJSONRequest(e.t, method, path, body))
}

func testPointer(orgID id.OrgID) (*models.Pointer, *models.DataObject) {
	data, _ := models.NewDataObject(id.NewDataID(), orgID, "patient-7", "sha3:feed", []byte("ciphertext"), fixedTime)
	p, _ := models.NewPointer(id.NewPointerID(), data, fixedTime)
	return p, data
}

func testReceipt(p *models.Pointer, op receiptmodels.Operation, seq int64) *receiptmodels.Receipt {
	r := &receiptmodels.Receipt{
		ID:                 id.NewReceiptID(),
		PointerID:          p.ID,
		OrgID:              p.OrgID,
		Operation:          op,
		Seq:                seq,
		CanonicalForm:      []byte(`{"operation":"` + string(op) + `"}`),
		Hash:               strings.Repeat("ab", 64),
		Signature:          []byte("signature-bytes"),
		SignatureAlgorithm: "ed25519",
		KeyID:              "key-1",
		Timestamp:          fixedTime,
	}
	if seq > 0 {
		r.PrevHash = receiptmodels.LinkTo(strings.Repeat("cd", 64))
	}
	return r
}

func TestHandleCreate(t *testing.T) {
	t.Run("creates pointer with decoded payload", func(t *testing.T) {
		env := newTestEnv(t)
		p, data := testPointer(env.orgID)
		rec := testReceipt(p, receiptmodels.OperationCreate, 0)

		env.registry.EXPECT().
			Create(gomock.Any(), registry.CreateRequest{
				SubjectID:   "patient-7",
				ContentHash: "sha3:feed",
				Payload:     []byte("ciphertext"),
			}).
			Return(&registry.CreateResult{Pointer: p, Data: data, Receipt: rec}, nil)

		resp := env.do(http.MethodPost, "/api/pointer/create", map[string]string{
			"subject_id":        " patient-7 ",
			"content_hash":      "sha3:feed",
			"encrypted_payload": base64.StdEncoding.EncodeToString([]byte("ciphertext")),
		})

		require.Equal(t, http.StatusCreated, resp.Code)
		body := testutil.DecodeJSON(t, resp)
		assert.Equal(t, p.ID.String(), body["pointer_id"])
		assert.Equal(t, data.ID.String(), body["data_id"])
		assert.Equal(t, "active", body["status"])
		receipt := body["receipt"].(map[string]any)
		assert.Equal(t, rec.Hash, receipt["receipt_hash"])
		assert.Equal(t, base64.StdEncoding.EncodeToString(rec.Signature), receipt["signature"])
		assert.Equal(t, "ed25519", receipt["signature_algorithm"])
		assert.NotContains(t, receipt, "prev_hash")
	})

	t.Run("explicit org is parsed", func(t *testing.T) {
		env := newTestEnv(t)
		orgID := id.NewOrgID()
		p, data := testPointer(orgID)

		env.registry.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, req registry.CreateRequest) (*registry.CreateResult, error) {
				require.NotNil(t, req.OrgID)
				assert.Equal(t, orgID, *req.OrgID)
				return &registry.CreateResult{Pointer: p, Data: data, Receipt: testReceipt(p, receiptmodels.OperationCreate, 0)}, nil
			})

		resp := env.do(http.MethodPost, "/api/pointer/create", map[string]string{
			"org_id":       orgID.String(),
			"subject_id":   "patient-7",
			"content_hash": "sha3:feed",
		})
		assert.Equal(t, http.StatusCreated, resp.Code)
	})

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing subject", map[string]string{"content_hash": "sha3:feed"}, "validation_error"},
		{"missing hash", map[string]string{"subject_id": "patient-7"}, "validation_error"},
		{"bad base64", map[string]string{"subject_id": "p", "content_hash": "h", "encrypted_payload": "%%%"}, "validation_error"},
		{"bad org id", map[string]string{"subject_id": "p", "content_hash": "h", "org_id": "not-a-uuid"}, "invalid_input"},
		{"malformed json", `{"subject_id":`, "bad_request"},
		{"unknown field", map[string]string{"subject_id": "p", "content_hash": "h", "payload": "x"}, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.do(http.MethodPost, "/api/pointer/create", tt.body)
			testutil.AssertStatusAndError(t, resp, http.StatusBadRequest, tt.want)
		})
	}

	t.Run("unknown organization is 404", func(t *testing.T) {
		env := newTestEnv(t)
		env.registry.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "organization not found"))

		resp := env.do(http.MethodPost, "/api/pointer/create", map[string]string{"subject_id": "p", "content_hash": "h"})
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestHandleResolve(t *testing.T) {
	t.Run("active pointer returns data", func(t *testing.T) {
		env := newTestEnv(t)
		p, data := testPointer(env.orgID)
		rec := testReceipt(p, receiptmodels.OperationResolve, 1)
		env.guard.EXPECT().Resolve(gomock.Any(), p.ID).
			Return(&enforcement.Resolution{Pointer: p, Data: data, Receipt: rec}, nil)

		resp := env.do(http.MethodGet, "/api/pointer/resolve/"+p.ID.String(), nil)

		require.Equal(t, http.StatusOK, resp.Code)
		body := testutil.DecodeJSON(t, resp)
		assert.Equal(t, "patient-7", body["subject_id"])
		assert.Equal(t, "sha3:feed", body["content_hash"])
		assert.Equal(t, "active", body["status"])
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("ciphertext")), body["encrypted_payload"])
		assert.Equal(t, rec.PrevHash.Hash, body["receipt"].(map[string]any)["prev_hash"])
	})

	t.Run("orphaned pointer is 403 with orphaned_at", func(t *testing.T) {
		env := newTestEnv(t)
		pointerID := id.NewPointerID()
		at := fixedTime.Add(time.Hour)
		env.guard.EXPECT().Resolve(gomock.Any(), pointerID).
			Return(nil, &enforcement.DeniedError{PointerID: pointerID, Reason: enforcement.ReasonPointerOrphaned, OrphanedAt: &at})

		resp := env.do(http.MethodGet, "/api/pointer/resolve/"+pointerID.String(), nil)

		require.Equal(t, http.StatusForbidden, resp.Code)
		body := testutil.DecodeJSON(t, resp)
		assert.Equal(t, "pointer_orphaned", body["error"])
		assert.Equal(t, "2025-06-01T13:00:00Z", body["orphaned_at"])
		assert.NotContains(t, body, "encrypted_payload")
	})

	t.Run("unknown pointer is 404", func(t *testing.T) {
		env := newTestEnv(t)
		env.guard.EXPECT().Resolve(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "pointer not found"))

		resp := env.do(http.MethodGet, "/api/pointer/resolve/"+id.NewPointerID().String(), nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("storage failure is 500 without description", func(t *testing.T) {
		env := newTestEnv(t)
		env.guard.EXPECT().Resolve(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeStorageFailure, "connection reset"))

		resp := env.do(http.MethodGet, "/api/pointer/resolve/"+id.NewPointerID().String(), nil)
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		body := testutil.DecodeJSON(t, resp)
		assert.Equal(t, "storage_failure", body["error"])
		assert.NotContains(t, body, "error_description")
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.do(http.MethodGet, "/api/pointer/resolve/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestHandleOrphan(t *testing.T) {
	t.Run("orphans pointer", func(t *testing.T) {
		env := newTestEnv(t)
		p, _ := testPointer(env.orgID)
		at := fixedTime.Add(time.Hour)
		p.ApplyOrphan(at, "")
		rec := testReceipt(p, receiptmodels.OperationOrphan, 1)
		env.registry.EXPECT().Orphan(gomock.Any(), p.ID, "consent withdrawn").
			Return(&registry.OrphanResult{Pointer: p, Receipt: rec}, nil)

		resp := env.do(http.MethodPost, "/api/pointer/orphan", map[string]string{
			"pointer_id": p.ID.String(),
			"reason":     " consent withdrawn ",
		})

		require.Equal(t, http.StatusOK, resp.Code)
		body := testutil.DecodeJSON(t, resp)
		assert.Equal(t, "orphaned", body["status"])
		assert.Equal(t, "2025-06-01T13:00:00Z", body["orphaned_at"])
		assert.Equal(t, models.DefaultOrphanReason, body["reason"])
		assert.Equal(t, rec.PrevHash.Hash, body["receipt"].(map[string]any)["prev_hash"])
	})

	t.Run("already orphaned is 409", func(t *testing.T) {
		env := newTestEnv(t)
		env.registry.EXPECT().Orphan(gomock.Any(), gomock.Any(), "").
			Return(nil, dErrors.New(dErrors.CodeAlreadyOrphaned, "pointer is already orphaned"))

		resp := env.do(http.MethodPost, "/api/pointer/orphan", map[string]string{"pointer_id": id.NewPointerID().String()})
		require.Equal(t, http.StatusConflict, resp.Code)
		assert.Equal(t, "already_orphaned", testutil.DecodeJSON(t, resp)["error"])
	})

	t.Run("missing pointer id is 400", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.do(http.MethodPost, "/api/pointer/orphan", map[string]string{"reason": "x"})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestHandleReceipts(t *testing.T) {
	t.Run("lists receipts in order", func(t *testing.T) {
		env := newTestEnv(t)
		p, _ := testPointer(env.orgID)
		receipts := []*receiptmodels.Receipt{
			testReceipt(p, receiptmodels.OperationCreate, 0),
			testReceipt(p, receiptmodels.OperationOrphan, 1),
		}
		env.audit.EXPECT().ReceiptsFor(gomock.Any(), p.ID).Return(receipts, nil)

		resp := env.do(http.MethodGet, "/api/receipts/"+p.ID.String(), nil)

		require.Equal(t, http.StatusOK, resp.Code)
		var body ReceiptListResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 2, body.Count)
		assert.Equal(t, "create", body.Receipts[0].Operation)
		assert.Nil(t, body.Receipts[0].PrevHash)
		assert.Equal(t, int64(1), body.Receipts[1].Seq)
		assert.NotEmpty(t, body.Receipts[1].CanonicalForm)
	})

	t.Run("verify reports broken chain as 200", func(t *testing.T) {
		env := newTestEnv(t)
		pointerID := id.NewPointerID()
		brokenAt := int64(1)
		env.audit.EXPECT().VerifyChain(gomock.Any(), pointerID).
			Return(&receiptmodels.Verification{PointerID: pointerID, Valid: false, Length: 2, BrokenAt: &brokenAt, Reason: "hash mismatch"}, nil)

		resp := env.do(http.MethodGet, "/api/receipts/"+pointerID.String()+"/verify", nil)

		require.Equal(t, http.StatusOK, resp.Code)
		body := testutil.DecodeJSON(t, resp)
		assert.Equal(t, false, body["valid"])
		assert.Equal(t, float64(1), body["broken_at"])
	})

	t.Run("unknown pointer is 404", func(t *testing.T) {
		env := newTestEnv(t)
		env.audit.EXPECT().ReceiptsFor(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "pointer not found"))

		resp := env.do(http.MethodGet, "/api/receipts/"+id.NewPointerID().String(), nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestHandleAuditTrail(t *testing.T) {
	t.Run("defaults to configured organization", func(t *testing.T) {
		env := newTestEnv(t)
		env.audit.EXPECT().AuditTrailFor(gomock.Any(), env.orgID, "patient-7").
			Return(&auditmodels.Trail{
				OrgID:     env.orgID,
				SubjectID: "patient-7",
				Summary:   auditmodels.SubjectSummary{Total: 2, Active: 1, Orphaned: 1},
				Events:    []*auditmodels.Event{},
			}, nil)

		resp := env.do(http.MethodGet, "/api/audit/patient-7", nil)

		require.Equal(t, http.StatusOK, resp.Code)
		body := testutil.DecodeJSON(t, resp)
		summary := body["summary"].(map[string]any)
		assert.Equal(t, float64(2), summary["total_pointers"])
		assert.Equal(t, float64(1), summary["orphaned_pointers"])
	})

	t.Run("org_id query parameter", func(t *testing.T) {
		env := newTestEnv(t)
		orgID := id.NewOrgID()
		env.audit.EXPECT().AuditTrailFor(gomock.Any(), orgID, "patient-7").
			Return(&auditmodels.Trail{OrgID: orgID, SubjectID: "patient-7", Events: []*auditmodels.Event{}}, nil)

		resp := env.do(http.MethodGet, "/api/audit/patient-7?org_id="+orgID.String(), nil)
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("malformed org_id is 400", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.do(http.MethodGet, "/api/audit/patient-7?org_id=nope", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestHandleCreateOrganization(t *testing.T) {
	env := newTestEnv(t)
	orgID := id.NewOrgID()
	env.registry.EXPECT().EnsureOrganization(gomock.Any(), orgID, "Clinic North").
		Return(&models.Organization{ID: orgID, Name: "Clinic North", CreatedAt: fixedTime}, nil)

	resp := env.do(http.MethodPost, "/admin/organizations", map[string]string{
		"org_id": orgID.String(),
		"name":   " Clinic North ",
	})

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, orgID.String(), testutil.DecodeJSON(t, resp)["org_id"])
}
