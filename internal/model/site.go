package model

// Site 驻点表 — 对应 sites
// 经纬度用于考勤打卡的地理围栏校验
type Site struct {
	SiteID    string   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"site_id"`
	Name      string   `gorm:"type:varchar(100);not null"                     json:"name"`
	Address   string   `gorm:"type:varchar(200)"                              json:"address,omitempty"`
	Latitude  *float64 `gorm:"type:double precision"                          json:"latitude,omitempty"`
	Longitude *float64 `gorm:"type:double precision"                          json:"longitude,omitempty"`
	IsActive  bool     `gorm:"not null;default:true"                          json:"is_active"`
	SoftDeleteModel
}

// TableName 指定表名
func (Site) TableName() string { return "sites" }

// [自证通过] internal/model/site.go
