package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vulcan_backend/internals/helpers/apperr"
)

func TestUserValidateDefaultsRole(t *testing.T) {
	u := &UserModel{FirstName: "Ada", Email: "  ADA@Example.org "}
	assert.NoError(t, u.Validate())
	assert.Equal(t, "constituent", u.Role)
	assert.Equal(t, "ada@example.org", u.Email)
}

func TestUserValidateRejectsUnknownRole(t *testing.T) {
	u := &UserModel{FirstName: "Bo", Email: "bo@example.org", Role: "superuser"}
	err := u.Validate()

	var ve *apperr.ValidationError
	if assert.ErrorAs(t, err, &ve) {
		assert.Contains(t, ve.Fields, "role")
	}
}

func TestFullNameAndRoles(t *testing.T) {
	var nilUser *UserModel
	assert.Equal(t, "", nilUser.FullName())
	assert.False(t, nilUser.IsAdmin())

	u := &UserModel{FirstName: "Grace", LastName: "Hopper", Role: "admin"}
	assert.Equal(t, "Grace Hopper", u.FullName())
	assert.True(t, u.IsAdmin())
}
