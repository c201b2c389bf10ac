package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type transferRequest struct {
	ConversationID int64  `json:"conversationId" validate:"gt=0"`
	Role           string `json:"role" validate:"required,oneof=agent user"`
	Reason         string `json:"reason,omitempty" validate:"omitempty,notblank,max=16"`
	Internal       string `json:"-" validate:"omitempty,len=2"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(transferRequest{ConversationID: 4, Role: "agent", Reason: "handover"}))

	err := ValidateStruct(transferRequest{Role: "admin", Reason: "   ", Internal: "abc"})
	var ve ValidationErrors
	require.True(t, errors.As(err, &ve), "got %T", err)

	got := map[string]string{}
	for _, f := range ve {
		got[f.Field] = f.Tag
	}
	require.Equal(t, map[string]string{
		"conversationId": "gt",
		"role":           "oneof",
		"reason":         "notblank",
		"Internal":       "len",
	}, got)
}

func TestValidateVarUsesFieldName(t *testing.T) {
	require.NoError(t, ValidateVar("limit", 50, "min=1,max=200"))

	err := ValidateVar("limit", 500, "min=1,max=200")
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve, 1)
	require.Equal(t, FieldError{Field: "limit", Tag: "max", Param: "200"}, ve[0])
	require.EqualError(t, err, "limit failed on max=200")
}

func TestValidationErrorsString(t *testing.T) {
	require.Equal(t, "validation failed", ValidationErrors{}.Error())
	require.Equal(t,
		"role failed on required; limit failed on min=1",
		ValidationErrors{{Field: "role", Tag: "required"}, {Field: "limit", Tag: "min", Param: "1"}}.Error(),
	)
}
