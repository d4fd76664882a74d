package models

import "time"

type UpdateMeta struct {
	UpdateID  int64     `json:"update_id"`
	Timestamp time.Time `json:"timestamp"`
	Audience  []int64   `json:"audience"`
}

type ChatCreated struct {
	UpdateMeta
	ChatID    int64 `json:"chat_id"`
	CreatedBy int64 `json:"created_by"`
}

type MemberAdded struct {
	UpdateMeta
	ChatID int64  `json:"chat_id"`
	UID    int64  `json:"uid"`
	Role   string `json:"role"`
}

type MemberRemoved struct {
	UpdateMeta
	ChatID int64 `json:"chat_id"`
	UID    int64 `json:"uid"`
}

type MemberRoleChanged struct {
	UpdateMeta
	ChatID int64  `json:"chat_id"`
	UID    int64  `json:"uid"`
	Role   string `json:"role"`
}
