package models

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification is the delivery log of outbound WhatsApp messages.
// Status: "sent", "failed", "skipped"
type Notification struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	CreatedAt time.Time

	FamilyID  string `gorm:"index;size:36"`
	Channel   string // whatsapp
	Kind      string // visit_confirmed | voucher_issued | voucher_redeemed | voucher_reminder | reply
	Recipient string
	Status    string
	Error     string
	Meta      datatypes.JSONMap // media url, voucher code, provider message sid
}

// notificationNode is the snowflake node id; the server is the only writer.
const notificationNode int64 = 1

var (
	nodeOnce sync.Once
	node     *snowflake.Node
	nodeErr  error
)

func newNode(id int64) (*snowflake.Node, error) {
	n, err := snowflake.NewNode(id)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", id, err)
	}
	return n, nil
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID != 0 {
		return nil
	}
	nodeOnce.Do(func() {
		node, nodeErr = newNode(notificationNode)
	})
	if nodeErr != nil {
		return nodeErr
	}
	n.ID = node.Generate()
	return nil
}
