package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	student := Person{ID: "s1", Name: "Alex", Role: RoleSubject}
	teacher := Person{ID: "t1", Name: "Dr. Smith", Role: RoleOwner}
	admin := Person{ID: "a1", Name: "Admin", Role: RoleObserver}

	tests := []struct {
		name    string
		person  Person
		cap     Capability
		owner   string
		wantErr error
	}{
		{name: "subject marks", person: student, cap: CapMarkSelf},
		{name: "subject cannot override", person: student, cap: CapOverride, owner: "s1", wantErr: ErrForbidden},
		{name: "subject own history", person: student, cap: CapViewHistory, owner: "s1"},
		{name: "subject other history", person: student, cap: CapViewHistory, owner: "s2", wantErr: ErrForbidden},
		{name: "owner overrides own session", person: teacher, cap: CapOverride, owner: "t1"},
		{name: "owner overrides foreign session", person: teacher, cap: CapOverride, owner: "t2", wantErr: ErrForbidden},
		{name: "owner cannot self mark", person: teacher, cap: CapMarkSelf, wantErr: ErrForbidden},
		{name: "owner institution analytics", person: teacher, cap: CapViewAnalytics, owner: "", wantErr: ErrForbidden},
		{name: "observer institution analytics", person: admin, cap: CapViewAnalytics, owner: ""},
		{name: "observer any roster", person: admin, cap: CapViewRoster, owner: "t1"},
		{name: "observer cannot issue", person: admin, cap: CapIssueCode, owner: "a1", wantErr: ErrForbidden},
		{name: "missing id", person: Person{Role: RoleObserver}, cap: CapViewDisplay, wantErr: ErrUnauthorized},
		{name: "unknown role", person: Person{ID: "x", Role: "janitor"}, cap: CapViewDisplay, wantErr: ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.person, tt.cap, tt.owner)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleSubject.Valid())
	assert.True(t, RoleOwner.Valid())
	assert.True(t, RoleObserver.Valid())
	assert.False(t, Role("admin").Valid())
}

func TestAuthorizeAny(t *testing.T) {
	student := Person{ID: "s1", Role: RoleSubject}
	teacher := Person{ID: "t1", Role: RoleOwner}

	assert.NoError(t, AuthorizeAny(student, CapViewHistory, "s1", "t1"))
	assert.NoError(t, AuthorizeAny(teacher, CapViewHistory, "s1", "t1"))
	assert.ErrorIs(t, AuthorizeAny(teacher, CapViewHistory, "s1", "t2"), ErrForbidden)
	assert.NoError(t, AuthorizeAny(student, CapViewDisplay))
	assert.ErrorIs(t, AuthorizeAny(Person{}, CapViewDisplay, "x"), ErrUnauthorized)
}

func TestAuthenticate(t *testing.T) {
	assert.NoError(t, Authenticate(Person{ID: "s1", Role: RoleSubject}))
	assert.ErrorIs(t, Authenticate(Person{Role: RoleSubject}), ErrUnauthorized)
	assert.ErrorIs(t, Authenticate(Person{ID: "s1", Role: "guest"}), ErrUnauthorized)
}
