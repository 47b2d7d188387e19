package models

import "time"

// PendingEmail 发送失败待重试的邮件
type PendingEmail struct {
	ID            uint       `gorm:"primarykey" json:"id"`                               // 主键
	To            string     `gorm:"column:to_address;type:varchar(200);not null" json:"to"` // 收件人
	Subject       string     `gorm:"type:varchar(300);not null" json:"subject"`          // 主题
	HTML          string     `gorm:"type:text" json:"html"`                              // HTML 正文
	Text          string     `gorm:"type:text" json:"text,omitempty"`                    // 纯文本正文
	Status        string     `gorm:"type:varchar(20);index;not null" json:"status"`      // 状态（pending/sent/failed）
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`                 // 已尝试次数
	ErrorMessage  string     `gorm:"type:text" json:"error_message"`                     // 最近一次错误
	LastAttemptAt *time.Time `json:"last_attempt_at"`                                    // 最近尝试时间
	SentAt        *time.Time `json:"sent_at"`                                            // 发送成功时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                            // 创建时间
	UpdatedAt     time.Time  `json:"updated_at"`                                         // 更新时间
}

// TableName 指定表名
func (PendingEmail) TableName() string {
	return "pending_emails"
}
