package models

import "time"

type OrderStatus string

const (
	OrderCreated OrderStatus = "created"
	OrderPaid    OrderStatus = "paid"
)

type Order struct {
	ID            string
	Email         string
	CommerceOrder string
	FlowToken     string
	Status        OrderStatus
	DownloadToken *string
	PaidAt        *time.Time
	CreatedAt     time.Time
}
