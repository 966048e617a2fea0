package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// S3Client is the subset of the S3 API the archiver uses.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
)

// ScrubPII replaces emails with [EMAIL] and phone numbers with [PHONE].
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	return phoneRe.ReplaceAllString(text, "[PHONE]")
}

// Archiver writes cleared transcripts to S3 as JSONL, one message per line.
type Archiver struct {
	s3     S3Client
	bucket string
	prefix string
	logger *logging.Logger
	now    func() time.Time
}

func NewArchiver(client S3Client, bucket, prefix string, logger *logging.Logger) *Archiver {
	if client == nil || bucket == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{
		s3:     client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
		now:    time.Now,
	}
}

// Archive uploads messages with PII scrubbed and returns the object key.
func (a *Archiver) Archive(ctx context.Context, messages []Message) (string, error) {
	var buf bytes.Buffer
	for _, m := range messages {
		m.Text = ScrubPII(m.Text)
		line, err := json.Marshal(m)
		if err != nil {
			return "", fmt.Errorf("chat: encode archive line: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	now := a.now().UTC()
	key := fmt.Sprintf("%d/%02d/%02d/chat_%s.jsonl", now.Year(), now.Month(), now.Day(), now.Format("20060102T150405.000Z"))
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}

	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"archive_reason": "clear_chat",
			"message_count":  strconv.Itoa(len(messages)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat: s3 upload failed: %w", err)
	}
	a.logger.Info("chat: transcript archived", "s3_key", key, "messages", len(messages), "bytes", buf.Len())
	return key, nil
}
