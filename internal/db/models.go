package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role is the single privilege axis: subscription tiers and staff roles
// share one total order.
type Role string

const (
	RoleRegistered Role = "registered"
	RoleSilver     Role = "silver"
	RoleGold       Role = "gold"
	RolePlatinum   Role = "platinum"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
)

// Roles lists every role from lowest to highest.
var Roles = []Role{RoleRegistered, RoleSilver, RoleGold, RolePlatinum, RoleModerator, RoleAdmin}

// Level returns the position of r in the role order, or -1 for unknown roles.
func (r Role) Level() int {
	for i, known := range Roles {
		if known == r {
			return i
		}
	}
	return -1
}

func (r Role) Valid() bool { return r.Level() >= 0 }

// IsTier reports whether r is a purchasable subscription tier.
func (r Role) IsTier() bool { return r.Valid() && r.Level() <= RolePlatinum.Level() }

// Direction of a swipe.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

func (d Direction) Valid() bool { return d == DirectionLeft || d == DirectionRight }

// NotificationType enumerates the notification feed event kinds.
type NotificationType string

const (
	NotificationMatch                NotificationType = "match"
	NotificationMessage              NotificationType = "message"
	NotificationLike                 NotificationType = "like"
	NotificationSuperLike            NotificationType = "super_like"
	NotificationProfileView          NotificationType = "profile_view"
	NotificationPhotoApproved        NotificationType = "photo_approved"
	NotificationPhotoRejected        NotificationType = "photo_rejected"
	NotificationSubscriptionExpiring NotificationType = "subscription_expiring"
	NotificationSubscriptionRenewed  NotificationType = "subscription_renewed"
)

// Profile is the user-owned record everything else hangs off.
//
// Role doubles as the subscription tier for registered..platinum. Daily usage
// counters are reset lazily once LastLikeResetAt falls on an earlier UTC day.
type Profile struct {
	ID       uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	Name     string         `gorm:"size:128" json:"name"`
	Email    string         `gorm:"size:255;index" json:"email,omitempty"`
	Age      int            `json:"age,omitempty"`
	Gender   string         `gorm:"size:32" json:"gender,omitempty"`
	Bio      string         `gorm:"type:text" json:"bio,omitempty"`
	Location string         `gorm:"size:255" json:"location,omitempty"`
	Photos   datatypes.JSON `json:"photos,omitempty"`
	Role     Role           `gorm:"size:16;not null;default:registered;index" json:"role"`

	SubscriptionTier      string     `gorm:"size:16;default:registered" json:"subscription_tier"`
	SubscriptionStatus    string     `gorm:"size:16;default:inactive" json:"subscription_status"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`

	DailyLikesUsed      int       `gorm:"not null;default:0" json:"daily_likes_used"`
	DailySuperLikesUsed int       `gorm:"not null;default:0" json:"daily_super_likes_used"`
	DailyBoostsUsed     int       `gorm:"not null;default:0" json:"daily_boosts_used"`
	LastLikeResetAt     time.Time `json:"last_like_reset_at"`

	IsBanned  bool    `gorm:"not null;default:false;index" json:"is_banned"`
	BanReason *string `gorm:"size:512" json:"ban_reason,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Profile) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Role == "" {
		p.Role = RoleRegistered
	}
	if p.LastLikeResetAt.IsZero() {
		p.LastLikeResetAt = Now()
	}
	return nil
}

// PhotoList decodes the photos column.
func (p *Profile) PhotoList() []string {
	var photos []string
	if len(p.Photos) > 0 {
		_ = json.Unmarshal(p.Photos, &photos)
	}
	return photos
}

// Swipe is one directional decision.
//
// Unique index idx_swipe_pair(user_id, target_user_id) guarantees at most one
// decision per ordered pair; inserts use ON CONFLICT DO NOTHING so concurrent
// double submissions cannot both land.
type Swipe struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_swipe_pair,priority:1" json:"user_id"`
	TargetUserID uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_swipe_pair,priority:2;index:idx_swipe_target_dir,priority:1" json:"target_user_id"`
	Direction    Direction `gorm:"size:8;not null;index:idx_swipe_target_dir,priority:2" json:"direction"`
	SuperLike    bool      `gorm:"not null;default:false" json:"super_like"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (s *Swipe) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Match is a mutual right swipe. The pair is canonical: User1ID sorts before
// User2ID, so idx_match_pair makes a second insert for the same pair a no-op.
type Match struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	User1ID   uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_match_pair,priority:1" json:"user1_id"`
	User2ID   uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_match_pair,priority:2;index" json:"user2_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (m *Match) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Other returns the participant that is not userID.
func (m *Match) Other(userID uuid.UUID) uuid.UUID {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}

// CanonicalPair orders two ids so that the first sorts lower.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// Notification is a feed entry addressed to UserID. Only the recipient
// mutates it, and only to mark it read.
type Notification struct {
	ID               uuid.UUID        `gorm:"type:char(36);primaryKey" json:"id"`
	UserID           uuid.UUID        `gorm:"type:char(36);not null;index:idx_notif_user_created,priority:1" json:"user_id"`
	Type             NotificationType `gorm:"size:32;not null;index" json:"type"`
	Title            string           `gorm:"size:128;not null" json:"title"`
	Message          string           `gorm:"size:512;not null" json:"message"`
	RelatedUserID    *uuid.UUID       `gorm:"type:char(36);index" json:"related_user_id,omitempty"`
	RelatedMatchID   *uuid.UUID       `gorm:"type:char(36);index" json:"related_match_id,omitempty"`
	RelatedMessageID *uuid.UUID       `gorm:"type:char(36)" json:"related_message_id,omitempty"`
	Data             datatypes.JSON   `json:"data,omitempty"`
	IsRead           bool             `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt        time.Time        `gorm:"autoCreateTime;index:idx_notif_user_created,priority:2,sort:desc" json:"created_at"`
	ReadAt           *time.Time       `json:"read_at,omitempty"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// Conversation is a two-participant thread with canonical participant order.
type Conversation struct {
	ID             uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	Participant1ID uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_conversation_pair,priority:1" json:"participant1_id"`
	Participant2ID uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_conversation_pair,priority:2;index" json:"participant2_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Conversation) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.Participant1ID == userID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

type Message struct {
	ID             uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:char(36);not null;index:idx_message_conv_created,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID `gorm:"type:char(36);not null" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_message_conv_created,priority:2" json:"created_at"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ProfileView records that ViewerID opened ViewedID's profile. One row per
// ordered pair; repeat visits bump ViewCount and LastViewedAt.
type ProfileView struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	ViewerID     uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_view_pair,priority:1" json:"viewer_id"`
	ViewedID     uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_view_pair,priority:2;index" json:"viewed_id"`
	ViewCount    int       `gorm:"not null;default:1" json:"view_count"`
	LastViewedAt time.Time `json:"last_viewed_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (v *ProfileView) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.LastViewedAt.IsZero() {
		v.LastViewedAt = Now()
	}
	return nil
}

// ModeratorPermission is an additive grant, assignable only by admins.
type ModeratorPermission struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID     uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_modperm_user_perm,priority:1" json:"user_id"`
	Permission string    `gorm:"size:64;not null;uniqueIndex:idx_modperm_user_perm,priority:2" json:"permission"`
	GrantedBy  uuid.UUID `gorm:"type:char(36);not null" json:"granted_by"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// AuthAccount lives in the auth-only store; ID equals the profile id.
type AuthAccount struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey"`
	Email        string    `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// SecurityEvent is the durable copy of an access gate decision.
type SecurityEvent struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID   string    `gorm:"size:64;not null;index" json:"actor_id"`
	TargetID  string    `gorm:"size:64" json:"target_id,omitempty"`
	Action    string    `gorm:"size:64;not null" json:"action"`
	Result    string    `gorm:"size:16;not null" json:"result"`
	Reason    string    `gorm:"size:255" json:"reason,omitempty"`
	Severity  string    `gorm:"size:16;not null;index" json:"severity"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// AllModels is the AutoMigrate set for the primary store.
func AllModels() []any {
	return []any{
		&Profile{}, &Swipe{}, &Match{}, &Notification{}, &ProfileView{},
		&Conversation{}, &Message{}, &ModeratorPermission{}, &SecurityEvent{},
	}
}
