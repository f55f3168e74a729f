// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Course 是课程，一个课程下有多份讲义。
type Course struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Course) TableName() string {
	return "courses"
}

// Lecture 是一份上传的讲义笔记，删除课程时级联删除。
type Lecture struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID    uint    `gorm:"not null;index" json:"course_id"`
	Course      *Course `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	LectureName string  `gorm:"type:varchar(255);not null" json:"lecture_name"`
	// FilePath 是原始笔记文件在对象存储中的 key，未启用归档时为空。
	FilePath    string    `gorm:"type:varchar(512)" json:"file_path"`
	FileContent string    `gorm:"type:longtext;not null" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Lecture) TableName() string {
	return "lectures"
}
