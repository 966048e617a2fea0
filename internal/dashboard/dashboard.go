// Package dashboard manages the home page content: health tips, notifications
// and free-form user data.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/healsmart/internal/docstore"
	"github.com/wolfman30/healsmart/internal/liveview"
	"github.com/wolfman30/healsmart/pkg/logging"
)

const (
	tipsCollection          = "healthTips"
	notificationsCollection = "notifications"
	userDataCollection      = "userData"

	// DefaultTitle and DefaultImage are shown for notifications without their own.
	DefaultTitle = "HealSmart"
	DefaultImage = "bf5c8787-0fbe-4640-b36a-da81f4aaeb66.png"
)

var (
	ErrEmptyTip          = errors.New("dashboard: health tip text is required")
	ErrEmptyNotification = errors.New("dashboard: notification message is required")
	ErrEmptyUserData     = errors.New("dashboard: user data is empty")
)

// HealthTip is shown as "<emoji> <text>".
type HealthTip struct {
	Emoji     string `json:"emoji"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func (t HealthTip) Validate() error {
	if strings.TrimSpace(t.Text) == "" {
		return ErrEmptyTip
	}
	return nil
}

type Notification struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	ImageURL  string `json:"imageUrl"`
	Timestamp int64  `json:"timestamp"`
}

func (n Notification) Validate() error {
	if strings.TrimSpace(n.Message) == "" {
		return ErrEmptyNotification
	}
	return nil
}

var defaultTips = []HealthTip{
	{Emoji: "🥦", Text: "Eat a balanced diet rich in vegetables and proteins."},
	{Emoji: "🚶", Text: "Walk at least 10,000 steps a day for a healthy heart."},
	{Emoji: "🛌", Text: "Get 7-8 hours of sleep for proper brain function."},
	{Emoji: "🧘", Text: "Reduce stress with meditation or deep breathing."},
}

var defaultNotification = Notification{
	Title:    DefaultTitle,
	Message:  "💡 Stay hydrated! Drink at least 8 glasses of water daily.",
	ImageURL: DefaultImage,
}

type Service struct {
	store  docstore.Store
	logger *logging.Logger
	now    func() time.Time
}

func NewService(store docstore.Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("dashboard: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

func (s *Service) AddHealthTip(ctx context.Context, emoji, text string) (string, error) {
	tip := HealthTip{Emoji: strings.TrimSpace(emoji), Text: strings.TrimSpace(text), Timestamp: s.now().UnixMilli()}
	return s.add(ctx, tipsCollection, tip)
}

func (s *Service) AddNotification(ctx context.Context, title, message, imageURL string) (string, error) {
	n := Notification{
		Title:     strings.TrimSpace(title),
		Message:   strings.TrimSpace(message),
		ImageURL:  strings.TrimSpace(imageURL),
		Timestamp: s.now().UnixMilli(),
	}
	return s.add(ctx, notificationsCollection, n)
}

// UpdateUserData appends fields as a new userData record. A "timestamp" field
// is always overwritten with the creation time.
func (s *Service) UpdateUserData(ctx context.Context, fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "", ErrEmptyUserData
	}
	record := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record["timestamp"] = s.now().UnixMilli()
	id, err := s.store.Create(ctx, userDataCollection, record)
	if err != nil {
		return "", fmt.Errorf("dashboard: add user data: %w", err)
	}
	return id, nil
}

func (s *Service) add(ctx context.Context, collection string, record any) (string, error) {
	data, err := docstore.Encode(record)
	if err != nil {
		return "", err
	}
	id, err := s.store.Create(ctx, collection, data)
	if err != nil {
		return "", fmt.Errorf("dashboard: add to %s: %w", collection, err)
	}
	return id, nil
}

// SeedResult reports what SeedDefaults added.
type SeedResult struct {
	Tips          int `json:"tips"`
	Notifications int `json:"notifications"`
}

// SeedDefaults adds the default tips when there are none and the default
// notification when there are none. Seeding is not atomic: two concurrent
// seeders may both add defaults.
func (s *Service) SeedDefaults(ctx context.Context) (SeedResult, error) {
	var res SeedResult

	tips, err := s.store.Query(ctx, docstore.Query{Collection: tipsCollection, Limit: 1})
	if err != nil {
		return res, fmt.Errorf("dashboard: check tips: %w", err)
	}
	if len(tips) == 0 {
		for _, tip := range defaultTips {
			if _, err := s.AddHealthTip(ctx, tip.Emoji, tip.Text); err != nil {
				return res, err
			}
			res.Tips++
		}
	}

	notifications, err := s.store.Query(ctx, docstore.Query{Collection: notificationsCollection, Limit: 1})
	if err != nil {
		return res, fmt.Errorf("dashboard: check notifications: %w", err)
	}
	if len(notifications) == 0 {
		n := defaultNotification
		if _, err := s.AddNotification(ctx, n.Title, n.Message, n.ImageURL); err != nil {
			return res, err
		}
		res.Notifications++
	}

	if res.Tips > 0 || res.Notifications > 0 {
		s.logger.Info("dashboard defaults seeded", "tips", res.Tips, "notifications", res.Notifications)
	}
	return res, nil
}

// HealthTipsFeed lists tips, newest first.
func HealthTipsFeed() liveview.Feed {
	return liveview.Feed{
		Name:        "healthTips",
		Query:       docstore.Query{Collection: tipsCollection, OrderBy: "timestamp", Direction: docstore.Descending},
		EmptyText:   "No health tips yet.",
		FailureText: "Error loading health tips. Please try again.",
		Format: func(doc docstore.Document) liveview.Item {
			emoji, _ := doc.Data["emoji"].(string)
			text, _ := doc.Data["text"].(string)
			return liveview.Item{ID: doc.ID, Text: strings.TrimSpace(emoji + " " + text), Kind: "tip"}
		},
	}
}

// NotificationsFeed lists notifications, latest first.
func NotificationsFeed() liveview.Feed {
	return liveview.Feed{
		Name:        "notifications",
		Query:       docstore.Query{Collection: notificationsCollection, OrderBy: "timestamp", Direction: docstore.Descending},
		EmptyText:   "No notifications.",
		FailureText: "Error loading notifications. Please try again.",
		Format:      formatNotification,
	}
}

func formatNotification(doc docstore.Document) liveview.Item {
	title, _ := doc.Data["title"].(string)
	message, _ := doc.Data["message"].(string)
	image, _ := doc.Data["imageUrl"].(string)
	if title == "" {
		title = DefaultTitle
	}
	if image == "" {
		image = DefaultImage
	}
	return liveview.Item{ID: doc.ID, Text: title + ": " + message, Kind: "notification", Image: image}
}
