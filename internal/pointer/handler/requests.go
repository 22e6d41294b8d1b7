package handler

import (
	"encoding/base64"
	"strings"

	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
)

const (
	maxSubjectIDLength   = 255
	maxContentHashLength = 256
	maxReasonLength      = 512
)

// CreatePointerRequest is the body of POST /api/pointer/create.
type CreatePointerRequest struct {
	OrgID            string         `json:"org_id,omitempty"`
	SubjectID        string         `json:"subject_id"`
	ContentHash      string         `json:"content_hash"`
	EncryptedPayload string         `json:"encrypted_payload,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`

	parsedOrgID *id.OrgID
	payload     []byte
}

// Validate implements httputil.Validatable.
func (r *CreatePointerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.SubjectID) > maxSubjectIDLength {
		return dErrors.New(dErrors.CodeValidation, "subject_id must be at most 255 characters")
	}
	if len(r.ContentHash) > maxContentHashLength {
		return dErrors.New(dErrors.CodeValidation, "content_hash must be at most 256 characters")
	}

	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.ContentHash = strings.TrimSpace(r.ContentHash)
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if r.ContentHash == "" {
		return dErrors.New(dErrors.CodeValidation, "content_hash is required")
	}

	if orgID := strings.TrimSpace(r.OrgID); orgID != "" {
		parsed, err := id.ParseOrgID(orgID)
		if err != nil {
			return err
		}
		r.parsedOrgID = &parsed
	}

	if r.EncryptedPayload != "" {
		payload, err := base64.StdEncoding.DecodeString(r.EncryptedPayload)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "encrypted_payload must be base64")
		}
		r.payload = payload
	}
	return nil
}

// ParsedOrgID is nil when the default organization applies.
func (r *CreatePointerRequest) ParsedOrgID() *id.OrgID {
	return r.parsedOrgID
}

// Payload returns the decoded encrypted payload.
func (r *CreatePointerRequest) Payload() []byte {
	return r.payload
}

// OrphanPointerRequest is the body of POST /api/pointer/orphan.
type OrphanPointerRequest struct {
	PointerID string `json:"pointer_id"`
	Reason    string `json:"reason,omitempty"`

	parsedPointerID id.PointerID
}

func (r *OrphanPointerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 512 characters")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	pointerID, err := id.ParsePointerID(strings.TrimSpace(r.PointerID))
	if err != nil {
		return err
	}
	r.parsedPointerID = pointerID
	return nil
}

func (r *OrphanPointerRequest) ParsedPointerID() id.PointerID {
	return r.parsedPointerID
}

// CreateOrganizationRequest is the body of POST /admin/organizations. A
// missing org_id generates one.
type CreateOrganizationRequest struct {
	OrgID string `json:"org_id,omitempty"`
	Name  string `json:"name"`

	parsedOrgID id.OrgID
}

func (r *CreateOrganizationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if orgID := strings.TrimSpace(r.OrgID); orgID != "" {
		parsed, err := id.ParseOrgID(orgID)
		if err != nil {
			return err
		}
		r.parsedOrgID = parsed
		return nil
	}
	r.parsedOrgID = id.NewOrgID()
	return nil
}

func (r *CreateOrganizationRequest) ParsedOrgID() id.OrgID {
	return r.parsedOrgID
}
