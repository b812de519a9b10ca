package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassify_KeepsAppErrors(t *testing.T) {
	sentinel := New(KindConflict, "claim already assigned")
	wrapped := fmt.Errorf("accept claim: %w", sentinel)

	got := Classify(wrapped)
	require.NotNil(t, got)
	assert.Same(t, sentinel, got)
	assert.True(t, errors.Is(wrapped, sentinel))
	assert.Equal(t, http.StatusConflict, got.Status())
}

func TestClassify_LibraryErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"record not found", fmt.Errorf("query: %w", gorm.ErrRecordNotFound), KindNotFound},
		{"duplicated key", gorm.ErrDuplicatedKey, KindConflict},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, KindConflict},
		{"mysql other", &mysql.MySQLError{Number: 1213, Message: "Deadlock"}, KindDatabase},
		{"deadline", fmt.Errorf("llm: %w", context.DeadlineExceeded), KindExternalService},
		{"json syntax", &json.SyntaxError{Offset: 3}, KindValidation},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Classify(tt.err).Kind)
		})
	}
}

func TestClassify_ValidatorDetails(t *testing.T) {
	type payload struct {
		Email string `validate:"required,email"`
	}
	err := validator.New().Struct(payload{Email: "nope"})
	require.Error(t, err)

	got := Classify(err)
	assert.Equal(t, KindValidation, got.Kind)
	assert.Equal(t, "email", got.Details["email"])
}

func TestClassify_UnknownHidesMessage(t *testing.T) {
	got := Classify(errors.New("dial tcp 10.0.0.3:3306: connection refused"))
	assert.Equal(t, "internal server error", got.Message)
	assert.Equal(t, SeverityHigh, got.Severity())
	assert.Equal(t, 50000, got.Code)
}

func TestWithCodeOverridesDefault(t *testing.T) {
	e := WithCode(KindAuthentication, 40101, "Invalid credentials")
	assert.Equal(t, 40101, e.Code)
	assert.Equal(t, http.StatusUnauthorized, e.Status())
	assert.Equal(t, SeverityMedium, e.Severity())
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}
