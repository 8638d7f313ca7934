package selectors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogHasRequiredRoles(t *testing.T) {
	c := Default()

	for _, role := range Required {
		assert.False(t, c.Set(role).Empty(), "role %s should have queries", role)
	}

	assert.NotEmpty(t, c.UnreachableMarkers())
}

func TestSendButtonOrderStartsWithTestID(t *testing.T) {
	set := Default().Set(RoleSendButton)

	require.NotEmpty(t, set.Queries)
	assert.Equal(t, `[data-testid="send"]`, set.Queries[0])
	assert.Equal(t, RoleSendButton, set.Role)
}

func TestMatchUnreachableIgnoresCase(t *testing.T) {
	c := Default()

	marker, ok := c.MatchUnreachable("PHONE NUMBER SHARED VIA URL IS INVALID.")
	assert.True(t, ok)
	assert.Equal(t, "Phone number shared via url is invalid", marker)

	_, ok = c.MatchUnreachable("The number +1 555 isn't on WhatsApp")
	assert.True(t, ok)

	_, ok = c.MatchUnreachable("Type a message")
	assert.False(t, ok)
}

func TestLoadOverridesOnlyGivenRoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	content := `
roles:
  send_button:
    - 'button.custom-send'
markers:
  unreachable:
    - 'no such user'
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"button.custom-send"}, c.Set(RoleSendButton).Queries)
	assert.Equal(t, Default().Set(RoleComposeBox).Queries, c.Set(RoleComposeBox).Queries)
	_, ok := c.MatchUnreachable("No such user")
	assert.True(t, ok)
	_, ok = c.MatchUnreachable("not on WhatsApp")
	assert.False(t, ok)
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Set(RoleFileInput), c.Set(RoleFileInput))
}

func TestParseRejectsMissingRequiredRole(t *testing.T) {
	_, err := Parse([]byte("roles:\n  compose_box:\n    - 'div'\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no queries")
}

func TestParseDropsBlankQueries(t *testing.T) {
	c, err := parse([]byte("roles:\n  compose_box:\n    - ''\n    - ' footer div '\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"footer div"}, c.Set(RoleComposeBox).Queries)
}
