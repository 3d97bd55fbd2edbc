package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clubhub/internal/docstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue(Session{ID: "alice", Username: "alice", Role: RoleOrganizer}, "clubhub", "k", time.Minute)
	require.NoError(t, err)

	claims, err := Parse(tok.AccessToken, "k", "clubhub")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, RoleOrganizer, claims.Role)
	assert.True(t, claims.Staff())

	_, err = Parse(tok.AccessToken, "other", "clubhub")
	assert.Error(t, err)
	_, err = Parse(tok.AccessToken, "k", "someone-else")
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	tok, err := Issue(Session{ID: "j1", Role: RoleJudge, EventID: "e1"}, "clubhub", "k", -time.Minute)
	require.NoError(t, err)
	_, err = Parse(tok.AccessToken, "k", "clubhub")
	assert.Error(t, err)
}

func TestMiddleware_RoleGate(t *testing.T) {
	r := gin.New()
	r.GET("/x", Authenticate("k", "clubhub"), RequireRole(RoleAdmin), func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.String(http.StatusOK, claims.Subject)
	})

	do := func(header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer junk").Code)

	student, _ := Issue(Session{ID: "23CS001", Role: RoleStudent}, "clubhub", "k", time.Minute)
	assert.Equal(t, http.StatusForbidden, do("Bearer "+student.AccessToken).Code)

	admin, _ := Issue(Session{ID: "root", Role: RoleAdmin}, "clubhub", "k", time.Minute)
	w := do("Bearer " + admin.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "root", w.Body.String())
}

func TestMiddleware_StaffGate(t *testing.T) {
	r := gin.New()
	r.GET("/staff", Authenticate("k", "clubhub"), RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := map[string]int{
		RoleOrganizer: http.StatusNoContent,
		RoleSecretary: http.StatusNoContent,
		RoleAdmin:     http.StatusNoContent,
		RoleStudent:   http.StatusForbidden,
		RoleJudge:     http.StatusForbidden,
	}
	for role, want := range cases {
		tok, err := Issue(Session{ID: "u-" + role, Role: role}, "clubhub", "k", time.Minute)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/staff", nil)
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, role)
	}
}

func TestAccounts_LoginFlow(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(docstore.NewMemory(), zap.NewNop())

	require.NoError(t, accounts.EnsureAdmin(ctx, "Admin", "supersecret"))
	require.NoError(t, accounts.EnsureAdmin(ctx, "admin", "different-pass"))

	s, err := accounts.Login(ctx, "ADMIN", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, s.Role)
	require.NotNil(t, s.LastLogin)

	_, err = accounts.CreateStaff(ctx, "ravi", "organizer-pass", "Ravi", "Coding Club", RoleOrganizer)
	require.NoError(t, err)
	_, err = accounts.CreateStaff(ctx, "ravi", "organizer-pass", "Ravi", "Coding Club", RoleOrganizer)
	assert.ErrorIs(t, err, ErrAccountExists)
	_, err = accounts.CreateStaff(ctx, "x", "organizer-pass", "X", "", RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidRole)

	s, err = accounts.Login(ctx, "ravi", "organizer-pass")
	require.NoError(t, err)
	assert.Equal(t, RoleOrganizer, s.Role)

	_, err = accounts.Login(ctx, "ravi", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = accounts.Login(ctx, "nobody", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
