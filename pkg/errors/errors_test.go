package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := map[Code]Metadata{
		CodeValidation:     {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeUnauthorized:   {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeNotFound:       {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:       {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
		CodeStateConflict:  {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
		CodeIdempotency:    {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
		CodeRateLimit:      {HTTPStatus: http.StatusTooManyRequests, Retryable: true, PublicMessage: "rate limit exceeded"},
		CodePaymentFailed:  {HTTPStatus: http.StatusPaymentRequired, Retryable: true, PublicMessage: "payment failed, please try again", DetailsAllowed: true},
		CodeInternal:       {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
		CodeDependency:     {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},
		CodeRequestTimeout: {HTTPStatus: http.StatusGatewayTimeout, Retryable: true, PublicMessage: "request timed out"},
	}
	for code, want := range tests {
		t.Run(string(code), func(t *testing.T) {
			if got := MetadataFor(code); got != want {
				t.Fatalf("metadata mismatch\n got %+v\nwant %+v", got, want)
			}
		})
	}
	if len(tests) != len(metadataByCode) {
		t.Fatalf("table covers %d codes, registry has %d", len(tests), len(metadataByCode))
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	if got := MetadataFor("SOMETHING_UNKNOWN"); got != MetadataFor(CodeInternal) {
		t.Fatalf("expected internal metadata, got %+v", got)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestValidationCarriesViolations(t *testing.T) {
	err := Validation("contact incomplete", FieldViolation{Field: "phone", Reason: "required"})
	violations, ok := err.Details().([]FieldViolation)
	if !ok || len(violations) != 1 {
		t.Fatalf("expected one violation, got %#v", err.Details())
	}
	if violations[0].Field != "phone" {
		t.Fatalf("unexpected field %q", violations[0].Field)
	}
	if Validation("bare").Details() != nil {
		t.Fatalf("expected nil details without violations")
	}
}

func TestAsAndIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeNotFound, "no promo"))
	if got := As(err); got == nil || got.Code() != CodeNotFound {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeNotFound) {
		t.Fatalf("expected IsCode to match wrapped code")
	}
	if IsCode(stdErrors.New("plain"), CodeNotFound) {
		t.Fatalf("plain errors carry no code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("conn refused"), "insert order")
	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(d.Chain))
	}
	if d.DB != nil {
		t.Fatalf("expected no driver detail, got %+v", d.DB)
	}
	if _, ok := d.Fields()["db_code"]; ok {
		t.Fatal("db fields must be omitted without a driver error")
	}
}

func TestDumpExtractsPostgresDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_session_id", TableName: "orders"}
	d := Dump(Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "persist order"))
	if d.DB == nil || d.DB.Driver != "pgx" || d.DB.Constraint != "ux_orders_session_id" {
		t.Fatalf("unexpected db detail %+v", d.DB)
	}
	fields := d.Fields()
	if fields["db_code"] != "23505" || fields["db_table"] != "orders" || fields["error_code"] != string(CodeConflict) {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("timeout"), "publish")
	if err.Error() != "DEPENDENCY_ERROR: publish: timeout" {
		t.Fatalf("unexpected string %q", err.Error())
	}
	var nilErr *Error
	if nilErr.Code() != CodeInternal || IsCode(nilErr, CodeInternal) {
		t.Fatal("nil *Error must report internal code but match no code")
	}
}
