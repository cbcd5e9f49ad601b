package evoke

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

// Validator is the schema validation boundary. Implementations decode raw
// payload data into dst (a pointer to the declared model) and validate it,
// reporting failures as *ValidationError with field-level detail.
type Validator interface {
	Validate(dst any, raw any) error
}

// Validatable is the optional self-validation contract for payload models.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type Validatable interface {
	Validate() error
}

// structValidator is the default Validator: JSON decode followed by
// go-playground/validator struct-tag validation, then the model's own
// Validate method when implemented.
type structValidator struct {
	validate *playground.Validate
}

// NewStructValidator returns the default schema adapter. Models declare their
// schema with `validate:"..."` struct tags:
//
//	type JoinRoom struct {
//	    Room string `json:"room" validate:"required"`
//	    Nick string `json:"nick" validate:"required,min=2"`
//	}
func NewStructValidator() Validator {
	return &structValidator{validate: playground.New(playground.WithRequiredStructEnabled())}
}

func (v *structValidator) Validate(dst any, raw any) error {
	if err := decodePayload(dst, raw); err != nil {
		return &ValidationError{
			Message: fmt.Sprintf("decode payload: %v", err),
			err:     err,
		}
	}

	if err := v.validate.Struct(dst); err != nil {
		var fieldErrs playground.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{
				Field:   fieldPath(fe),
				Message: fmt.Sprintf("failed %q validation", fe.Tag()),
				err:     err,
			}
		}
		var invalid *playground.InvalidValidationError
		if errors.As(err, &invalid) {
			// Non-struct models (maps, slices) carry no tags to check.
			err = nil
		} else {
			return &ValidationError{Message: err.Error(), err: err}
		}
	}

	if va, ok := dst.(Validatable); ok {
		if err := va.Validate(); err != nil {
			return &ValidationError{Message: err.Error(), err: err}
		}
	}

	return nil
}

// decodePayload fills dst from raw. Byte payloads are unmarshaled directly;
// structured payloads (a Before hook may have replaced the raw bytes with a
// map) are re-encoded first. A raw value already assignable to the model is
// used as-is.
func decodePayload(dst any, raw any) error {
	dstV := reflect.ValueOf(dst).Elem()

	switch r := raw.(type) {
	case json.RawMessage:
		return json.Unmarshal(r, dst)
	case []byte:
		return json.Unmarshal(r, dst)
	}

	rv := reflect.ValueOf(raw)
	if rv.IsValid() && rv.Type().AssignableTo(dstV.Type()) {
		dstV.Set(rv)
		return nil
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// fieldPath trims the model name from go-playground's namespaced field path,
// so JoinRoom.Room surfaces as "Room".
func fieldPath(fe playground.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
