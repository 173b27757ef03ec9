package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattendance/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("attendance-test", "secret", time.Minute, time.Hour)
	id := Identity{UserID: "u-1", Role: model.RoleFaculty}

	pair, err := iss.Issue(id)
	require.NoError(t, err)

	got, err := iss.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = iss.ParseAccess(pair.RefreshToken)
	assert.Error(t, err, "refresh token must not authenticate requests")

	got, err = iss.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestParseRejectsForeignKeyAndExpired(t *testing.T) {
	iss := NewIssuer("attendance-test", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue(Identity{UserID: "u-1", Role: model.RoleStudent})
	require.NoError(t, err)

	other := NewIssuer("attendance-test", "other-secret", time.Minute, time.Hour)
	_, err = other.ParseAccess(pair.AccessToken)
	assert.Error(t, err)

	iss.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = iss.ParseAccess(pair.AccessToken)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("attendance-test", "secret", time.Minute, time.Hour)

	r := gin.New()
	r.GET("/staff", Authenticate(iss), RequireRole(model.RoleFaculty, model.RoleAdmin), func(c *gin.Context) {
		c.String(http.StatusOK, FromContext(c).UserID)
	})

	do := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/staff", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("garbage").Code)

	student, err := iss.Issue(Identity{UserID: "s-1", Role: model.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(student.AccessToken).Code)

	faculty, err := iss.Issue(Identity{UserID: "f-1", Role: model.RoleFaculty})
	require.NoError(t, err)
	rec := do(faculty.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "f-1", rec.Body.String())
}
