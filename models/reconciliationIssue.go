package models

import "time"

// ReconciliationIssue records one drift finding and what the repair pass did with it.
type ReconciliationIssue struct {
	ID            int         `gorm:"primary_key" json:"id"`
	ClientId      string      `gorm:"size:64;index;not null" json:"client_id"`
	IssueType     IssueType   `gorm:"size:50;index;not null" json:"issue_type"`
	OrderId       int         `gorm:"index;not null" json:"order_id"`
	Status        IssueStatus `gorm:"size:20;index;not null" json:"status"`
	Details       string      `gorm:"type:text" json:"details"`
	CorrelationId string      `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}
