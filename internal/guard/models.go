package guard

import (
	"time"

	"github.com/google/uuid"
)

// BlockedIP is a permanently blocked address. Permanent means until an
// operator clears the row; there is no automatic expiry.
type BlockedIP struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	Address   string    `json:"address" gorm:"uniqueIndex;not null;column:blocked_ip"`
	IsBlocked bool      `json:"is_blocked" gorm:"not null;default:true"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BlockedIP) TableName() string {
	return "blocked_ips"
}
