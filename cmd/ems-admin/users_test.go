package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserAddFlags(t *testing.T) {
	opts, err := parseUserAddFlags([]string{"--email", " Jane.Doe@Example.com ", "--role", "Manager", "--employee-id", "7"})
	require.NoError(t, err)
	assert.Equal(t, "Jane.Doe@Example.com", opts.Email)
	assert.Equal(t, "manager", opts.Role)
	assert.Equal(t, int64(7), opts.EmployeeID)
}

func TestParseUserAddFlags_MissingEmail(t *testing.T) {
	_, err := parseUserAddFlags([]string{"--role", "admin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email is required")
}

func TestParseUserAddFlags_InvalidRole(t *testing.T) {
	_, err := parseUserAddFlags([]string{"--email", "a@b.com", "--role", "superuser"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")
}

func TestParseUserToggleFlags_RequiresID(t *testing.T) {
	_, err := parseUserToggleFlags("user-revoke", nil)
	require.Error(t, err)

	opts, err := parseUserToggleFlags("user-revoke", []string{"--id", "12"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), opts.ID)
}

func TestParseUserListFlags_Defaults(t *testing.T) {
	opts, err := parseUserListFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	_, err = parseUserListFlags([]string{"--limit", "0"})
	require.Error(t, err)
}
