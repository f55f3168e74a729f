// Package testutil 提供测试共用的数据库与数据构造函数。
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"super-feynman-go/internal/model"
	"super-feynman-go/pkg/database"
)

var dbSeq atomic.Int64

// DB 为每个测试打开一个独立的内存 SQLite 数据库，并完成迁移。
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, dbSeq.Add(1))
	db, err := database.OpenSQLite(dsn)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SeedCourse 插入一个课程。
func SeedCourse(tb testing.TB, db *gorm.DB, name string) *model.Course {
	tb.Helper()
	c := &model.Course{Name: name}
	if err := db.Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	return c
}

// SeedLecture 插入一份讲义。
func SeedLecture(tb testing.TB, db *gorm.DB, courseID uint, name, content string) *model.Lecture {
	tb.Helper()
	l := &model.Lecture{CourseID: courseID, LectureName: name, FileContent: content}
	if err := db.Create(l).Error; err != nil {
		tb.Fatalf("seed lecture: %v", err)
	}
	return l
}

// SeedConcept 插入一个概念。
func SeedConcept(tb testing.TB, db *gorm.DB, lectureID uint, name, desc string, status model.ProgressStatus) *model.Concept {
	tb.Helper()
	c := &model.Concept{LectureID: lectureID, ConceptName: name, ConceptDescription: desc, ProgressStatus: status}
	if err := db.Create(c).Error; err != nil {
		tb.Fatalf("seed concept: %v", err)
	}
	return c
}

// SeedEntropy 构造 "Thermo" 课程下的 Entropy 概念，常用于端到端场景。
func SeedEntropy(tb testing.TB, db *gorm.DB, status model.ProgressStatus) *model.Concept {
	tb.Helper()
	course := SeedCourse(tb, db, "Thermo")
	lecture := SeedLecture(tb, db, course.ID, "Lecture 3", "Entropy is a measure of disorder.")
	return SeedConcept(tb, db, lecture.ID, "Entropy", "A measure of disorder in a system.", status)
}
