package database

import (
	"fmt"
	"time"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"
	"electrafusion-backend/session"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type sampleUser struct {
	email    string
	password string
	admin    bool
}

var sampleUsers = []sampleUser{
	{"admin@electrafusion.com", "admin123", true},
	{"voter@electrafusion.com", "voter123", false},
}

// SeedSampleData 创建示例用户和投票，已有数据时跳过
func SeedSampleData(db *gorm.DB) error {
	log := logging.For("database", "SeedSampleData")

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Info("数据库已有数据，跳过示例数据创建")
		return nil
	}

	log.Info("创建示例数据...")
	return db.Transaction(func(tx *gorm.DB) error {
		var adminID string
		for _, su := range sampleUsers {
			hash, err := session.HashPassword(su.password)
			if err != nil {
				return err
			}
			u := models.User{
				ID:           uuid.NewString(),
				Email:        su.email,
				PasswordHash: hash,
				IsAdmin:      su.admin,
				IsVoter:      true,
			}
			if err := tx.Create(&u).Error; err != nil {
				return fmt.Errorf("创建示例用户失败: %w", err)
			}
			if su.admin {
				adminID = u.ID
			}
		}

		now := time.Now()
		inDays := func(d int) *time.Time {
			t := now.Add(time.Duration(d) * 24 * time.Hour)
			return &t
		}
		polls := []models.Poll{
			samplePoll(adminID, "Best Programming Language", "Vote for your favorite programming language",
				now, inDays(30), true, false, "", "",
				[]models.PollOption{{Text: "JavaScript"}, {Text: "Python"}, {Text: "Rust"}, {Text: "Go"}, {Text: "TypeScript"}}),
			samplePoll(adminID, "Favorite Cloud Provider", "Which cloud service do you prefer?",
				now, inDays(14), false, true, "", "",
				[]models.PollOption{{Text: "AWS"}, {Text: "Google Cloud"}, {Text: "Microsoft Azure"}, {Text: "Digital Ocean"}}),
			samplePoll(adminID, "Remote Work vs Office", "Do you prefer working remotely or in an office?",
				now, nil, true, false, "", "",
				[]models.PollOption{{Text: "Remote Work"}, {Text: "Office Work"}, {Text: "Hybrid Model"}}),
			samplePoll(adminID, "Riverside North MP Election", "Elect the member of parliament for Riverside North",
				now, inDays(7), false, true, "Riverside North", "mp",
				[]models.PollOption{
					{Text: "Amelia Hart", Party: "Green Alliance", Bio: "Local councillor focused on transit."},
					{Text: "Daniel Okafor", Party: "Labour Union", Bio: "Former teacher and union organiser."},
					{Text: "Priya Nair", Party: "Liberal Front", Bio: "Small business owner."},
				}),
		}
		for i := range polls {
			if err := tx.Create(&polls[i]).Error; err != nil {
				return fmt.Errorf("创建示例投票失败: %w", err)
			}
		}
		log.WithField("polls", len(polls)).Info("示例数据创建成功")
		return nil
	})
}

func samplePoll(createdBy, title, description string, start time.Time, end *time.Time,
	anonymous, verification bool, constituency, electionType string, options []models.PollOption) models.Poll {
	id := uuid.NewString()
	for i := range options {
		options[i].ID = uuid.NewString()
		options[i].PollID = id
		options[i].Position = i
	}
	return models.Poll{
		ID:                  id,
		Title:               title,
		Description:         description,
		CreatedBy:           createdBy,
		StartDate:           start,
		EndDate:             end,
		Options:             options,
		VotingMethod:        models.SingleChoice,
		AllowAnonymous:      anonymous,
		RequireVerification: verification,
		Status:              models.StatusActive,
		Constituency:        constituency,
		ElectionType:        electionType,
	}
}
