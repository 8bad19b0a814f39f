package db

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/soulmate-hub/internal/logger"
)

// SeedPassword is the password of every seeded account.
const SeedPassword = "password"

// seedRoles assigns the first few seeded users their roles; the rest are
// registered.
var seedRoles = []Role{RoleAdmin, RoleModerator, RolePlatinum, RoleGold, RoleSilver}

// SeedTestData resets the database and populates it with demo profiles,
// login accounts, swipes, matches and conversations.
//
// Behavior:
//  1. Clears every table the hub owns, plus accounts in authDB.
//  2. Creates 20 profiles (10 male, 10 female), user1@example.com being the
//     admin and user2@example.com a moderator. All log in with SeedPassword.
//  3. Generates ~200 swipes between opposite genders with ~70% right swipes;
//     every 3rd pair is made mutual.
//  4. Every mutual right pair gets a match and a short conversation.
//
// authDB may be the same handle as database.
func SeedTestData(database, authDB *gorm.DB) error {
	log := logger.With("component", "seed")
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if err := clearAll(database, authDB); err != nil {
		return err
	}
	log.Info("cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// --- Seed profiles (10 male, 10 female) ---
	profiles := make([]Profile, 0, 20)
	for i := 1; i <= 20; i++ {
		gender := "male"
		if i > 10 {
			gender = "female"
		}
		role := RoleRegistered
		if i <= len(seedRoles) {
			role = seedRoles[i-1]
		}
		photos, _ := json.Marshal([]string{fmt.Sprintf("https://picsum.photos/seed/user%d/400/600", i)})

		p := Profile{
			Name:     fmt.Sprintf("user%d", i),
			Email:    fmt.Sprintf("user%d@example.com", i),
			Age:      20 + r.Intn(25),
			Gender:   gender,
			Bio:      "Seeded profile",
			Location: "Berlin",
			Photos:   photos,
			Role:     role,
		}
		if role.IsTier() && role != RoleRegistered {
			expires := Now().AddDate(0, 1, 0)
			p.SubscriptionTier = string(role)
			p.SubscriptionStatus = "active"
			p.SubscriptionExpiresAt = &expires
		}
		if err := database.Create(&p).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}
		account := AuthAccount{ID: p.ID, Email: p.Email, PasswordHash: string(hash)}
		if err := authDB.Create(&account).Error; err != nil {
			return fmt.Errorf("failed to seed account: %w", err)
		}
		profiles = append(profiles, p)
	}
	log.Info("seeded profiles", "count", len(profiles))

	// --- Seed swipes (~200) ---
	counter := 0
	for _, actor := range profiles {
		for j := 0; j < 12; j++ { // each user decides on ~12 others
			target := profiles[r.Intn(len(profiles))]
			if target.ID == actor.ID || target.Gender == actor.Gender {
				continue
			}

			// right swipe probability 70%
			dir := DirectionLeft
			if r.Intn(100) < 70 {
				dir = DirectionRight
			}

			// guarantee mutual likes every 3rd pair
			if counter%3 == 0 {
				dir = DirectionRight
				if err := insertSwipe(database, target.ID, actor.ID, DirectionRight); err != nil {
					return err
				}
			}
			if err := insertSwipe(database, actor.ID, target.ID, dir); err != nil {
				return err
			}
			counter++
		}
	}
	log.Info("seeded swipes", "count", counter)

	matches, err := seedMatches(database)
	if err != nil {
		return err
	}
	log.Info("seeded matches", "count", matches)
	return nil
}

// SeedMinimalTestData writes a tiny fixed graph:
//
//	user1 <-> user2  mutual right, matched
//	user3  -> user1  right, not returned
//	user1  -> user3  left
func SeedMinimalTestData(database *gorm.DB) ([]Profile, error) {
	if err := clearAll(database, nil); err != nil {
		return nil, err
	}

	profiles := []Profile{
		{Name: "user1", Email: "u1@test.com", Gender: "male"},
		{Name: "user2", Email: "u2@test.com", Gender: "female"},
		{Name: "user3", Email: "u3@test.com", Gender: "female"},
	}
	if err := database.Create(&profiles).Error; err != nil {
		return nil, err
	}

	swipes := []Swipe{
		{UserID: profiles[0].ID, TargetUserID: profiles[1].ID, Direction: DirectionRight},
		{UserID: profiles[1].ID, TargetUserID: profiles[0].ID, Direction: DirectionRight},
		{UserID: profiles[2].ID, TargetUserID: profiles[0].ID, Direction: DirectionRight},
		{UserID: profiles[0].ID, TargetUserID: profiles[2].ID, Direction: DirectionLeft},
	}
	if err := database.Create(&swipes).Error; err != nil {
		return nil, err
	}

	if _, err := seedMatches(database); err != nil {
		return nil, err
	}
	return profiles, nil
}

func clearAll(database, authDB *gorm.DB) error {
	tables := []string{
		"messages", "conversations", "notifications", "profile_views",
		"matches", "swipes", "moderator_permissions", "security_events", "profiles",
	}
	for _, t := range tables {
		if err := database.Exec("DELETE FROM " + t).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", t, err)
		}
	}
	if authDB != nil {
		if err := authDB.Exec("DELETE FROM auth_accounts").Error; err != nil {
			return fmt.Errorf("failed to clear auth_accounts: %w", err)
		}
	}
	return nil
}

func insertSwipe(database *gorm.DB, actor, target uuid.UUID, dir Direction) error {
	s := Swipe{UserID: actor, TargetUserID: target, Direction: dir}
	if err := database.Clauses(clause.OnConflict{DoNothing: true}).Create(&s).Error; err != nil {
		return fmt.Errorf("failed to seed swipe: %w", err)
	}
	return nil
}

// seedMatches creates a match, and a conversation with two messages, for
// every mutual right pair.
func seedMatches(database *gorm.DB) (int, error) {
	var pairs []struct {
		A uuid.UUID
		B uuid.UUID
	}
	err := database.Table("swipes AS s1").
		Select("s1.user_id AS a, s1.target_user_id AS b").
		Joins("JOIN swipes s2 ON s2.user_id = s1.target_user_id AND s2.target_user_id = s1.user_id").
		Where("s1.direction = ? AND s2.direction = ? AND s1.user_id < s1.target_user_id", DirectionRight, DirectionRight).
		Scan(&pairs).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find mutual swipes: %w", err)
	}

	for _, p := range pairs {
		a, b := CanonicalPair(p.A, p.B)
		m := Match{User1ID: a, User2ID: b}
		if err := database.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
			return 0, fmt.Errorf("failed to seed match: %w", err)
		}

		c := Conversation{Participant1ID: a, Participant2ID: b}
		if err := database.Clauses(clause.OnConflict{DoNothing: true}).Create(&c).Error; err != nil {
			return 0, fmt.Errorf("failed to seed conversation: %w", err)
		}
		now := Now()
		msgs := []Message{
			{ConversationID: c.ID, SenderID: a, Content: "Hi! We matched 👋", CreatedAt: now.Add(-time.Minute)},
			{ConversationID: c.ID, SenderID: b, Content: "Hey, nice to meet you", CreatedAt: now},
		}
		if err := database.Create(&msgs).Error; err != nil {
			return 0, fmt.Errorf("failed to seed messages: %w", err)
		}
	}
	return len(pairs), nil
}
