package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/ratekeeper/internal/types"
)

// Sentinel errors raised by the API layer itself.
var (
	// ErrBadRequest indicates a request body that could not be decoded.
	ErrBadRequest = errors.New("malformed request")

	// ErrPersistenceDisabled indicates a persist or lookup request on a
	// service running without a quote store.
	ErrPersistenceDisabled = errors.New("quote persistence not configured")
)

// errorClass is the transport mapping of an error.
type errorClass struct {
	name string
	code codes.Code
	http int
}

var (
	classInvalid     = errorClass{"invalid_argument", codes.InvalidArgument, http.StatusBadRequest}
	classUnpriceable = errorClass{"failed_precondition", codes.FailedPrecondition, http.StatusUnprocessableEntity}
	classNotFound    = errorClass{"not_found", codes.NotFound, http.StatusNotFound}
	classInactive    = errorClass{"rule_inactive", codes.FailedPrecondition, http.StatusConflict}
	classTimeout     = errorClass{"deadline_exceeded", codes.DeadlineExceeded, http.StatusGatewayTimeout}
	classCanceled    = errorClass{"canceled", codes.Canceled, http.StatusRequestTimeout}
	classUnavailable = errorClass{"unavailable", codes.Unavailable, http.StatusServiceUnavailable}
)

// Request-shape errors: the caller sent something wrong.
var invalidArgument = []error{
	ErrBadRequest,
	types.ErrInvalidContext,
	types.ErrInvalidTenure,
	types.ErrNoRuleSelector,
	types.ErrAddonIndex,
	types.ErrMandatoryAddon,
	types.ErrDocumentTooLarge,
}

// Rule errors: the selected document cannot price this request.
var unpriceable = []error{
	types.ErrRuleResolution,
	types.ErrRuleKindMismatch,
	types.ErrInvalidRuleDocument,
	types.ErrDuplicateComponentID,
	types.ErrMissingComponentID,
	types.ErrUnknownComponentType,
	types.ErrUnknownField,
	types.ErrUnknownTarget,
	types.ErrBasisUnavailable,
	types.ErrInvalidSlab,
	types.ErrInvalidSwitch,
	types.ErrInvalidOperator,
	types.ErrInvalidExpression,
	types.ErrNegativeAmount,
	types.ErrCoercionFailed,
	types.ErrTreeTooDeep,
	types.ErrTooManyComponents,
	types.ErrTooManyRanges,
	types.ErrTooManyCases,
	types.ErrTooManyInValues,
	types.ErrInvalidTenureConfig,
}

// classify maps an error to its transport class. Anything unrecognised is
// treated as a storage failure.
func classify(err error) errorClass {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return classTimeout
	case errors.Is(err, context.Canceled):
		return classCanceled
	case errors.Is(err, types.ErrRuleNotFound), errors.Is(err, types.ErrQuoteNotFound):
		return classNotFound
	case errors.Is(err, types.ErrRuleInactive):
		return classInactive
	case errors.Is(err, ErrPersistenceDisabled):
		return classUnavailable
	}
	for _, target := range invalidArgument {
		if errors.Is(err, target) {
			return classInvalid
		}
	}
	for _, target := range unpriceable {
		if errors.Is(err, target) {
			return classUnpriceable
		}
	}
	return classUnavailable
}

// grpcError converts an error to a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(classify(err).code, err.Error())
}

// resolutionKind returns the RuleResolutionError kind, if any, for logging.
func resolutionKind(err error) string {
	var re *types.RuleResolutionError
	if errors.As(err, &re) {
		return string(re.Kind)
	}
	return ""
}
