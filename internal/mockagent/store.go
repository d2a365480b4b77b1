package mockagent

import (
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/agentdeck-dev/agentdeck/pkg/console/errors"
	"github.com/agentdeck-dev/agentdeck/pkg/console/events"
)

// Thread is one stored conversation.
type Thread struct {
	ID        string `gorm:"primaryKey"`
	Title     string
	CreatedAt time.Time
}

// Record is one stored transcript entry of a thread.
type Record struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ThreadID  string `gorm:"index"`
	Position  int
	Role      string
	Content   string
	Reasoning string
}

// ThreadStore persists threads in sqlite so history survives daemon
// restarts. Path ":memory:" keeps everything in process, which the tests
// use.
type ThreadStore struct {
	db *gorm.DB
}

// OpenThreadStore opens (and migrates) the sqlite database at path.
func OpenThreadStore(path string) (*ThreadStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeThreadStore, "failed to open database", err)
	}
	if err := db.AutoMigrate(&Thread{}, &Record{}); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeThreadStore, "failed to migrate schema", err)
	}
	return &ThreadStore{db: db}, nil
}

// SaveTurn appends transcript records to a thread, creating the thread on
// first use.
func (s *ThreadStore) SaveTurn(threadID, title string, records []Record) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var thread Thread
		err := tx.First(&thread, "id = ?", threadID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			thread = Thread{ID: threadID, Title: title, CreatedAt: time.Now().UTC()}
			if err := tx.Create(&thread).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		var next int64
		if err := tx.Model(&Record{}).Where("thread_id = ?", threadID).Count(&next).Error; err != nil {
			return err
		}
		for i := range records {
			records[i].ThreadID = threadID
			records[i].Position = int(next) + i
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
}

// ListThreads returns every stored thread, newest first.
func (s *ThreadStore) ListThreads() ([]events.ThreadInfo, error) {
	var threads []Thread
	if err := s.db.Order("created_at desc").Find(&threads).Error; err != nil {
		return nil, apperrors.New(apperrors.ErrCodeThreadStore, "failed to list threads", err)
	}
	out := make([]events.ThreadInfo, 0, len(threads))
	for _, th := range threads {
		out = append(out, events.ThreadInfo{ID: th.ID, Title: th.Title, CreatedAt: th.CreatedAt})
	}
	return out, nil
}

// LoadThread returns a thread's transcript in stored order.
func (s *ThreadStore) LoadThread(threadID string) ([]events.HistoryMessage, error) {
	var records []Record
	if err := s.db.Where("thread_id = ?", threadID).Order("position asc").Find(&records).Error; err != nil {
		return nil, apperrors.New(apperrors.ErrCodeThreadStore, "failed to load thread", err)
	}
	out := make([]events.HistoryMessage, 0, len(records))
	for _, rec := range records {
		out = append(out, events.HistoryMessage{
			Role:      rec.Role,
			Content:   rec.Content,
			Reasoning: rec.Reasoning,
		})
	}
	return out, nil
}

// DeleteThread removes a thread and its records.
func (s *ThreadStore) DeleteThread(threadID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("thread_id = ?", threadID).Delete(&Record{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Thread{ID: threadID}).Error
	})
}
