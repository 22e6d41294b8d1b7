package receipt

import (
	"time"

	pointermodels "veto/internal/pointer/models"
	"veto/internal/receipt/models"
	"veto/pkg/canonical"
	dErrors "veto/pkg/domain-errors"
)

// Field is an extra named value attested by a receipt, such as an orphan
// reason. Fields are nested under "metadata" in the canonical form.
type Field struct {
	Name  string
	Value any
}

// F is shorthand for a Field literal.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// Event is the input to canonicalization: one operation on one pointer at a
// known position in its chain.
type Event struct {
	Operation models.Operation
	Pointer   *pointermodels.Pointer
	Seq       int64
	Timestamp time.Time
	Prev      models.Link
	Fields    []Field
}

// CanonicalForm is the exact byte sequence a receipt hash covers.
type CanonicalForm []byte

// Canonicalize renders e deterministically. Equal events always produce equal
// bytes regardless of field order.
func Canonicalize(e Event) (CanonicalForm, error) {
	if !e.Operation.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown receipt operation: "+string(e.Operation))
	}
	if e.Pointer == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "receipt requires a pointer")
	}
	if e.Seq < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "receipt seq cannot be negative")
	}
	if (e.Seq == 0) == e.Prev.Valid {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "prev_hash must be absent exactly for the first receipt")
	}

	metadata := make(map[string]any, len(e.Fields))
	for _, f := range e.Fields {
		name := canonical.NormalizeString(f.Name)
		if name == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "receipt field name cannot be empty")
		}
		if _, dup := metadata[name]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "duplicate receipt field: "+name)
		}
		metadata[name] = f.Value
	}

	doc := map[string]any{
		"metadata":   metadata,
		"operation":  string(e.Operation),
		"org_id":     e.Pointer.OrgID,
		"pointer_id": e.Pointer.ID,
		"prev_hash":  e.Prev.CanonicalValue(),
		"seq":        e.Seq,
		"subject_id": e.Pointer.SubjectID,
		"timestamp":  e.Timestamp,
	}
	b, err := canonical.Marshal(doc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "receipt is not canonicalizable")
	}
	return CanonicalForm(b), nil
}

// canonicalHeader is the subset of the canonical form cross-checked against
// stored receipt columns during verification.
type canonicalHeader struct {
	Operation string  `json:"operation"`
	PointerID string  `json:"pointer_id"`
	OrgID     string  `json:"org_id"`
	PrevHash  *string `json:"prev_hash"`
	Seq       int64   `json:"seq"`
	Timestamp string  `json:"timestamp"`
}
