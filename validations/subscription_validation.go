package validations

import (
	"context"

	domainTracker "github.com/AzielCF/az-track/domains/tracker"
	pkgError "github.com/AzielCF/az-track/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

func ValidateSubscribe(ctx context.Context, request domainTracker.SubscribeRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.AccountID, validation.Required, validation.Min(int64(1))),
		validation.Field(&request.Destination, validation.Required, is.URL),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
