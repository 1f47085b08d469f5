package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/grixate/hunthelper/internal/config"
	"github.com/grixate/hunthelper/internal/hunt"
	"github.com/grixate/hunthelper/internal/telemetry"
)

// SolvedBucketSize is how many solved channels one holding category takes
// before the next configured category is used.
const SolvedBucketSize = 50

const solvedPrefix = "[SOLVED] "

// Client is the single boundary to the document and channel services. Create
// calls never fail past it: on error they return hunt.FailedID together with
// a *ProvisioningError after alerting the log channel.
type Client struct {
	drive            *DriveService
	discord          *DiscordService
	tokens           *TokenSource
	logChannelID     string
	pingID           string
	solvedCategories []string
	log              *log.Logger
	metrics          *telemetry.Metrics
}

func NewClient(cfg config.Config, logger *log.Logger, metrics *telemetry.Metrics) *Client {
	if logger == nil {
		logger = log.Default()
	}
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	timeout := time.Duration(cfg.Runtime.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	tokens := NewTokenSource(cfg.Drive, httpClient, metrics)
	return &Client{
		drive:            NewDriveService(cfg.Drive, tokens, httpClient),
		discord:          NewDiscordService(cfg.Discord, httpClient),
		tokens:           tokens,
		logChannelID:     strings.TrimSpace(cfg.Discord.LogChannelID),
		pingID:           strings.TrimSpace(cfg.Discord.PingID),
		solvedCategories: append([]string(nil), cfg.Discord.SolvedCategoryIDs...),
		log:              logger,
		metrics:          metrics,
	}
}

func (c *Client) Tokens() *TokenSource { return c.tokens }

func (c *Client) Discord() *DiscordService { return c.discord }

func (c *Client) CreateDocument(ctx context.Context, kind DocumentKind, name, parentID string) (string, error) {
	c.metrics.ProvisioningCalls.Add(1)
	id, err := c.drive.CreateFile(ctx, kind, name, parentID)
	if err != nil {
		return hunt.FailedID, c.failed(ctx, "create drive "+string(kind), name, err)
	}
	c.LogEvent(ctx, fmt.Sprintf("created drive %s: %s", kind, name))
	return id, nil
}

func (c *Client) CreateChannel(ctx context.Context, kind ChannelKind, name, parentID, topic string) (string, error) {
	c.metrics.ProvisioningCalls.Add(1)
	id, err := c.discord.CreateChannel(ctx, kind, name, parentID, topic)
	if err != nil {
		return hunt.FailedID, c.failed(ctx, "create discord "+kind.String(), name, err)
	}
	c.LogEvent(ctx, fmt.Sprintf("created discord %s: %s", kind, name))
	return id, nil
}

// SolvedBucket maps a zero-based solve index to a holding category index.
// The second result reports that the index ran past the configured buckets
// and was clamped to the last one.
func SolvedBucket(solvedIndex, buckets int) (int, bool) {
	if buckets <= 0 {
		return 0, true
	}
	if solvedIndex < 0 {
		solvedIndex = 0
	}
	bucket := solvedIndex / SolvedBucketSize
	if bucket >= buckets {
		return buckets - 1, true
	}
	return bucket, false
}

// MoveToSolvedHolding parks a solved node's channel in the holding category
// for solvedIndex and prefixes its document title. Identifiers that were never
// provisioned are skipped.
func (c *Client) MoveToSolvedHolding(ctx context.Context, channelID, documentID, title string, solvedIndex int) error {
	var errs []error
	bucket, clamped := SolvedBucket(solvedIndex, len(c.solvedCategories))
	if clamped {
		c.Alert(ctx, fmt.Sprintf("WARNING: solved index %d has no holding category, using bucket %d", solvedIndex, bucket))
	}
	if usable(channelID) && len(c.solvedCategories) > 0 {
		c.metrics.ProvisioningCalls.Add(1)
		if err := c.discord.MoveChannel(ctx, channelID, c.solvedCategories[bucket]); err != nil {
			errs = append(errs, c.failed(ctx, "move discord channel", title, err))
		}
	}
	if usable(documentID) {
		c.metrics.ProvisioningCalls.Add(1)
		if err := c.drive.RenameFile(ctx, documentID, solvedPrefix+title); err != nil {
			errs = append(errs, c.failed(ctx, "rename drive file", title, err))
		}
	}
	return errors.Join(errs...)
}

// LogEvent posts an audit line to the log channel. Failures stay local.
func (c *Client) LogEvent(ctx context.Context, text string) {
	c.LogEventTo(ctx, c.logChannelID, text)
}

func (c *Client) LogEventTo(ctx context.Context, channelID, text string) {
	c.log.Printf("(log %s) %s", channelID, text)
	if strings.TrimSpace(channelID) == "" {
		return
	}
	if err := c.discord.PostMessage(ctx, channelID, text); err != nil {
		c.metrics.LogPostFailures.Add(1)
		c.log.Printf("provision: log post failed: %v", err)
	}
}

// Alert is LogEvent with a ping for whoever is on call.
func (c *Client) Alert(ctx context.Context, text string) {
	if c.pingID != "" {
		text = fmt.Sprintf("<@%s> %s", c.pingID, text)
	}
	c.LogEvent(ctx, text)
}

func (c *Client) failed(ctx context.Context, op, name string, err error) error {
	c.metrics.ProvisioningFailures.Add(1)
	perr := &ProvisioningError{Op: op, Name: name, Err: err}
	c.log.Printf("provision: %v", perr)
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Unauthorized() {
		c.metrics.CredentialRejections.Add(1)
		c.Alert(ctx, fmt.Sprintf("%s: %s failed, %s rejected our credentials (status %d)!", op, name, reqErr.Service, reqErr.StatusCode))
		return perr
	}
	c.Alert(ctx, fmt.Sprintf("%s: %s failed!", op, name))
	return perr
}

func usable(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id != hunt.FailedID
}
