package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/auth"
	"github.com/bigfan007/ai-workmate/internal/models"
)

const testSecret = "test-secret"

func testRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	r := gin.New()
	r.GET("/protected", AuthRequired(db, testSecret), func(c *gin.Context) {
		u, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"email": u.Email})
	})
	r.GET("/admin", AuthRequired(db, testSecret), AdminRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r, db
}

func seedUserWithToken(t *testing.T, db *gorm.DB, role string) (*models.User, string) {
	t.Helper()
	u := &models.User{Email: role + "@test.com", Name: "T", PasswordHash: "x", Role: role}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := auth.SignJWT(u.ID, u.Email, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return u, token
}

func doGet(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired_MissingToken(t *testing.T) {
	r, _ := testRouter(t)
	if w := doGet(r, "/protected", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthRequired_MalformedToken(t *testing.T) {
	r, _ := testRouter(t)
	if w := doGet(r, "/protected", "not-a-jwt"); w.Code != http.StatusForbidden {
		t.Fatalf("malformed token must get 403, got %d", w.Code)
	}
}

func TestAuthRequired_WrongSecret(t *testing.T) {
	r, db := testRouter(t)
	u, _ := seedUserWithToken(t, db, models.RoleUser)
	bad, err := auth.SignJWT(u.ID, u.Email, "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	if w := doGet(r, "/protected", bad); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthRequired_ExpiredToken(t *testing.T) {
	r, db := testRouter(t)
	u, _ := seedUserWithToken(t, db, models.RoleUser)
	expired, err := auth.SignJWT(u.ID, u.Email, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	if w := doGet(r, "/protected", expired); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthRequired_ValidToken(t *testing.T) {
	r, db := testRouter(t)
	_, token := seedUserWithToken(t, db, models.RoleUser)
	if w := doGet(r, "/protected", token); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuthRequired_DeletedUser(t *testing.T) {
	r, db := testRouter(t)
	u, token := seedUserWithToken(t, db, models.RoleUser)
	if err := db.Delete(&models.User{}, u.ID).Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if w := doGet(r, "/protected", token); w.Code != http.StatusUnauthorized {
		t.Fatalf("token for a deleted user must get 401, got %d", w.Code)
	}
}

func TestAdminRequired(t *testing.T) {
	r, db := testRouter(t)

	_, userToken := seedUserWithToken(t, db, models.RoleUser)
	if w := doGet(r, "/admin", userToken); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin must get 403, got %d", w.Code)
	}

	_, adminToken := seedUserWithToken(t, db, models.RoleAdmin)
	if w := doGet(r, "/admin", adminToken); w.Code != http.StatusOK {
		t.Fatalf("admin must get 200, got %d", w.Code)
	}
}
