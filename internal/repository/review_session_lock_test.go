package repository

import (
	"strings"
	"testing"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"super-feynman-go/internal/model"
	"super-feynman-go/internal/testutil"
)

func TestForUpdateLocksSessionRow(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/super_feynman?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var s model.ReviewSession
		return forUpdate(tx).First(&s, 7)
	})
	if !strings.HasSuffix(strings.TrimSpace(sql), "FOR UPDATE") {
		t.Fatalf("sql = %q, want a FOR UPDATE read", sql)
	}
}

func TestForUpdateSkippedOnSQLite(t *testing.T) {
	db := testutil.DB(t)
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var s model.ReviewSession
		return forUpdate(tx).First(&s, 7)
	})
	if strings.Contains(sql, "FOR UPDATE") {
		t.Fatalf("sql = %q, sqlite has no row locks", sql)
	}
}
