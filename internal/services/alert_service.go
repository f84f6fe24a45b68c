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

	"github.com/sosiluv/farmpass/internal/config"
	pkglogger "github.com/sosiluv/farmpass/pkg/logger"
)

const alertSendTimeout = 10 * time.Second

// AlertService emails the operations address when the lockout flow crosses a
// threshold. Sends run detached from the request so a slow SES call never
// delays a login response. Implements AlertNotifier.
type AlertService struct {
	sesClient *ses.Client
	fromAddr  string
	opsAddr   string
	logger    *slog.Logger
}

// NewAlertService creates the SES-backed notifier, or a disabled one when
// alerting is turned off in config.
func NewAlertService(cfg *config.AlertConfig, logger *slog.Logger) (*AlertService, error) {
	if !cfg.Enabled {
		return &AlertService{logger: logger}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AlertService{
		sesClient: ses.NewFromConfig(awsCfg),
		fromAddr:  cfg.FromAddress,
		opsAddr:   cfg.OpsAddress,
		logger:    logger,
	}, nil
}

// NotifyAccountLocked alerts operations that an account hit the lockout
// threshold.
func (s *AlertService) NotifyAccountLocked(ctx context.Context, email string, attempts int) {
	subject := "Account locked after repeated failed logins"
	body := fmt.Sprintf(
		"The account %s was locked after %d failed login attempts.\n\n"+
			"The lock releases automatically when the lockout window elapses, "+
			"or an administrator can clear it from the admin panel.\n",
		email, attempts)

	s.send(ctx, subject, body, email)
}

// NotifySuspiciousAttempts alerts operations that an account is accumulating
// failures but is not locked yet.
func (s *AlertService) NotifySuspiciousAttempts(ctx context.Context, email string, attempts int) {
	subject := "Repeated failed logins on an account"
	body := fmt.Sprintf(
		"The account %s has accumulated %d failed login attempts and will be "+
			"locked if the failures continue.\n",
		email, attempts)

	s.send(ctx, subject, body, email)
}

// send dispatches the email in the background. Failures are logged only; an
// alert is advisory and never worth failing a request over.
func (s *AlertService) send(ctx context.Context, subject, body, accountEmail string) {
	if s.sesClient == nil {
		return
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertSendTimeout)
		defer cancel()

		_, err := s.sesClient.SendEmail(sendCtx, &ses.SendEmailInput{
			Source: aws.String(s.fromAddr),
			Destination: &types.Destination{
				ToAddresses: []string{s.opsAddr},
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
			s.logger.Error("failed to send ops alert",
				slog.String("subject", subject),
				slog.String("account_email", pkglogger.SanitizedEmail(accountEmail)),
				slog.Any("error", err))
			return
		}

		s.logger.Info("ops alert sent",
			slog.String("subject", subject),
			slog.String("account_email", pkglogger.SanitizedEmail(accountEmail)))
	}()
}
