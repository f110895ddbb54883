package services

import (
	"errors"

	"github.com/insightloop/core/pkg/errs"
)

// asTaxonomy coerces any error into a taxonomy *errs.Error so envelopes
// always carry a classified kind. Validation errors map to VALIDATION;
// everything unclassified becomes INTERNAL.
func asTaxonomy(err error) *errs.Error {
	var te *errs.Error
	if errors.As(err, &te) {
		return te
	}
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		return errs.New(errs.KindValidation, ve.Error(), err)
	}
	if errors.Is(err, errs.ErrNotFound) {
		return errs.New(errs.KindNotFound, err.Error(), err)
	}
	if errors.Is(err, errs.ErrAlreadyExists) || errors.Is(err, errs.ErrConflict) {
		return errs.New(errs.KindConflict, err.Error(), err)
	}
	return errs.New(errs.KindInternal, err.Error(), err)
}
