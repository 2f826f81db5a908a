package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/Ahmed3117/silverbook-authguard/internal/config"
	"github.com/Ahmed3117/silverbook-authguard/internal/models"
	"github.com/Ahmed3117/silverbook-authguard/pkg/logger"
)

// sesSender is the slice of the SES client the alert service uses.
type sesSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AlertService emails operators when a phone number escalates to a high block
// level, which usually means a sustained brute-force run rather than a
// forgotten password. Delivery happens off the request path; a mail outage
// never affects the block itself.
type AlertService struct {
	client sesSender
	config config.AlertConfig
	logger *slog.Logger
}

// NewAlertService creates a new AlertService using AWS SES
func NewAlertService(cfg config.AlertConfig, log *slog.Logger) (*AlertService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AlertService{
		client: ses.NewFromConfig(awsCfg),
		config: cfg,
		logger: log,
	}, nil
}

// BlockCreated implements BlockAlerter. Blocks below the configured level are
// ignored; the rest are mailed asynchronously.
func (s *AlertService) BlockCreated(ctx context.Context, block *models.Block) {
	if !s.config.Enabled || block.BlockLevel < s.config.MinBlockLevel {
		return
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.send(sendCtx, block); err != nil {
			s.logger.Error("failed to send block alert",
				slog.String("block_id", block.ID),
				slog.Any("error", err))
		}
	}()
}

func (s *AlertService) send(ctx context.Context, block *models.Block) error {
	subject := fmt.Sprintf("[authguard] level %d block on %s",
		block.BlockLevel, logger.SanitizePhone(block.PhoneNumber))

	body := fmt.Sprintf(
		"A level %d %s block was created.\n\n"+
			"Phone number: %s\n"+
			"Blocked until: %s\n"+
			"Consecutive blocks: %d\n"+
			"Source IPs: %v\n"+
			"Device IDs: %v\n\n"+
			"Review the attempt ledger before lifting the block manually.",
		block.BlockLevel,
		block.BlockType,
		logger.SanitizePhone(block.PhoneNumber),
		block.BlockedUntil.UTC().Format(time.RFC3339),
		block.ConsecutiveBlocks,
		block.IPAddresses,
		block.DeviceIDs,
	)

	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(s.config.FromAddress),
		Destination: &types.Destination{
			ToAddresses: s.config.Recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	return nil
}
