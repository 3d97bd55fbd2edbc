package student

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clubhub/internal/auth"
	"clubhub/internal/docstore"
)

func TestDirectory_RegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(docstore.NewMemory(), zap.NewNop())

	p, err := d.Register(ctx, SignUp{
		Roll: " 23cs001 ", Name: "Asha", Email: "Asha@College.edu",
		Department: "cse", Year: "2", Section: "a", Password: "longenough",
	})
	require.NoError(t, err)
	assert.Equal(t, "23CS001", p.Roll)
	assert.Equal(t, "CSE", p.Department)
	assert.Empty(t, p.PasswordHash)

	_, err = d.Register(ctx, SignUp{Roll: "23CS001", Name: "Dup", Email: "d@c.edu", Department: "CSE", Year: "2", Password: "longenough"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	s, err := d.Authenticate(ctx, "23cs001", "longenough")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleStudent, s.Role)
	assert.Equal(t, "23CS001", s.ID)

	_, err = d.Authenticate(ctx, "23CS001", "nope")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	got, err := d.Get(ctx, "23CS001")
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Name)

	_, err = d.Get(ctx, "99ZZ999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory_RejectsBadRoll(t *testing.T) {
	d := NewDirectory(docstore.NewMemory(), zap.NewNop())
	_, err := d.Register(context.Background(), SignUp{Roll: "23 CS", Name: "x", Email: "x@c.edu", Department: "CSE", Year: "1", Password: "longenough"})
	assert.ErrorIs(t, err, ErrInvalidRoll)
}
