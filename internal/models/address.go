package models

import "strings"

// Address 收货/账单地址（以值嵌入订单）
type Address struct {
	Name       string `gorm:"type:varchar(120)" json:"name"`        // 收件人
	Email      string `gorm:"type:varchar(200)" json:"email"`       // 邮箱
	Phone      string `gorm:"type:varchar(32)" json:"phone"`        // 电话
	Line1      string `gorm:"type:varchar(300)" json:"line1"`       // 地址行 1
	Line2      string `gorm:"type:varchar(300)" json:"line2"`       // 地址行 2（可选）
	City       string `gorm:"type:varchar(120)" json:"city"`        // 城市
	State      string `gorm:"type:varchar(120)" json:"state"`       // 省/州
	PostalCode string `gorm:"type:varchar(20)" json:"postal_code"`  // 邮编
	Country    string `gorm:"type:varchar(80)" json:"country"`      // 国家
}

// Normalize 去除首尾空白，邮箱统一小写
func (a Address) Normalize() Address {
	return Address{
		Name:       strings.TrimSpace(a.Name),
		Email:      strings.ToLower(strings.TrimSpace(a.Email)),
		Phone:      strings.TrimSpace(a.Phone),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}
