package models

import (
	"fmt"
	"time"
)

// BlockType identifies which operations a block covers. A "combined" block
// satisfies lookups for both login and password reset.
type BlockType string

const (
	BlockTypeLogin         BlockType = "login"
	BlockTypePasswordReset BlockType = "password_reset"
	BlockTypeCombined      BlockType = "combined"
)

// Covers reports whether a block of this type restricts the given attempt type.
func (bt BlockType) Covers(at AttemptType) bool {
	return bt == BlockTypeCombined || string(bt) == string(at)
}

// AttemptEvidence is a summary of one failed attempt, snapshotted onto the
// block that it helped trigger.
type AttemptEvidence struct {
	Timestamp     time.Time `json:"timestamp"`
	IPAddress     string    `json:"ip_address"`
	DeviceID      *string   `json:"device_id,omitempty"`
	FailureReason *string   `json:"failure_reason,omitempty"`
}

// Block is one escalation episode for a phone number. At most one block per
// (phone_number, block_type-or-combined) is active at a time.
type Block struct {
	ID                string    `db:"id"`
	PhoneNumber       string    `db:"phone_number"`
	BlockType         BlockType `db:"block_type"`
	BlockedAt         time.Time `db:"blocked_at"`
	BlockedUntil      time.Time `db:"blocked_until"`
	BlockLevel        int       `db:"block_level"`
	ConsecutiveBlocks int       `db:"consecutive_blocks"`

	IsActive          bool       `db:"is_active"`
	ManuallyUnblocked bool       `db:"manually_unblocked"`
	UnblockedBy       *string    `db:"unblocked_by"`
	UnblockedAt       *time.Time `db:"unblocked_at"`
	UnblockReason     *string    `db:"unblock_reason"`

	// Evidence snapshotted at creation time.
	FailedAttempts []AttemptEvidence `db:"failed_attempts"`
	IPAddresses    []string          `db:"ip_addresses"`
	UserAgents     []string          `db:"user_agents"`
	DeviceIDs      []string          `db:"device_ids"`
}

// IsExpired reports whether the block has naturally expired.
func (b *Block) IsExpired(now time.Time) bool {
	return !now.Before(b.BlockedUntil)
}

// RemainingSeconds returns how many seconds of the block remain.
func (b *Block) RemainingSeconds(now time.Time) int64 {
	if !b.IsActive || b.IsExpired(now) {
		return 0
	}
	return int64(b.BlockedUntil.Sub(now).Seconds())
}

// RemainingFormatted renders the remaining block time in Arabic, matching the
// message format the mobile clients display verbatim.
func (b *Block) RemainingFormatted(now time.Time) string {
	seconds := b.RemainingSeconds(now)
	if seconds == 0 {
		return "انتهت مدة الحظر"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%d يوم و %d ساعة", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%d ساعة و %d دقيقة", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%d دقيقة", minutes)
	default:
		return fmt.Sprintf("%d ثانية", seconds)
	}
}

func (b *Block) operationAr() string {
	if b.BlockType == BlockTypePasswordReset {
		return "إعادة تعيين كلمة المرور"
	}
	return "تسجيل الدخول"
}

func (b *Block) operationEn() string {
	if b.BlockType == BlockTypePasswordReset {
		return "password reset"
	}
	return "login"
}

// MessageAr returns the Arabic user-facing block notice.
func (b *Block) MessageAr(now time.Time) string {
	return fmt.Sprintf(
		"تم حظر محاولات %s لهذا الرقم مؤقتاً بسبب تجاوز عدد المحاولات المسموحة. "+
			"سيتم رفع الحظر تلقائياً بعد %s. "+
			"إذا لم تكن أنت من قام بهذه المحاولات، يرجى التواصل مع الدعم الفني فوراً.",
		b.operationAr(), b.RemainingFormatted(now))
}

// MessageEn returns the English user-facing block notice.
func (b *Block) MessageEn(now time.Time) string {
	return fmt.Sprintf(
		"%s attempts for this number are temporarily blocked because the allowed "+
			"number of attempts was exceeded. The block lifts automatically in %s.",
		b.operationEn(), b.RemainingFormatted(now))
}

// BlockInfo is the machine-readable view of an active block returned to
// callers and embedded in rejection responses.
type BlockInfo struct {
	BlockID           string    `json:"block_id"`
	BlockType         BlockType `json:"block_type"`
	BlockedUntil      time.Time `json:"blocked_until"`
	RemainingSeconds  int64     `json:"remaining_seconds"`
	RemainingText     string    `json:"remaining_formatted"`
	BlockLevel        int       `json:"block_level"`
	ConsecutiveBlocks int       `json:"consecutive_blocks"`
	MessageAr         string    `json:"message_ar"`
	MessageEn         string    `json:"message_en"`
}

// Info builds a BlockInfo snapshot of the block as of now.
func (b *Block) Info(now time.Time) *BlockInfo {
	return &BlockInfo{
		BlockID:           b.ID,
		BlockType:         b.BlockType,
		BlockedUntil:      b.BlockedUntil,
		RemainingSeconds:  b.RemainingSeconds(now),
		RemainingText:     b.RemainingFormatted(now),
		BlockLevel:        b.BlockLevel,
		ConsecutiveBlocks: b.ConsecutiveBlocks,
		MessageAr:         b.MessageAr(now),
		MessageEn:         b.MessageEn(now),
	}
}

// BlockFilter narrows operator listings of blocks.
type BlockFilter struct {
	PhoneNumber string
	BlockType   BlockType
	IsActive    *bool
	Limit       int
	Offset      int
}
