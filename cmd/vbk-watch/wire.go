package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/archon-research/vbk-watch/internal/adapters/outbound/faucet"
	"github.com/archon-research/vbk-watch/internal/adapters/outbound/memory"
	"github.com/archon-research/vbk-watch/internal/adapters/outbound/nodecore"
	"github.com/archon-research/vbk-watch/internal/adapters/outbound/postgres"
	"github.com/archon-research/vbk-watch/internal/adapters/outbound/redis"
	"github.com/archon-research/vbk-watch/internal/adapters/outbound/s3"
	"github.com/archon-research/vbk-watch/internal/adapters/outbound/sns"
	"github.com/archon-research/vbk-watch/internal/adapters/outbound/sqs"
	"github.com/archon-research/vbk-watch/internal/adapters/outbound/telemetry"
	"github.com/archon-research/vbk-watch/internal/application"
	"github.com/archon-research/vbk-watch/internal/pkg/httpclient"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// services holds the adapters built from config. closers run in reverse order.
type services struct {
	client  *nodecore.Client
	anchors *application.AnchorService
	archive outbound.BlockArchive
	queue   outbound.LookupRequestSource
	metrics outbound.MetricsRecorder

	closers []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (a *app) newNodeCoreClient() (*nodecore.Client, error) {
	var tel *nodecore.Telemetry
	if a.cfg.Telemetry.Enabled {
		var err error
		if tel, err = nodecore.NewTelemetry(); err != nil {
			return nil, fmt.Errorf("failed to create nodecore telemetry: %w", err)
		}
	}

	return nodecore.NewClient(nodecore.ClientConfig{
		URL:        a.cfg.NodeCore.URL,
		Username:   a.cfg.NodeCore.Username,
		Password:   a.cfg.NodeCore.Password,
		Timeout:    a.cfg.NodeCore.Timeout,
		MaxRetries: a.cfg.NodeCore.MaxRetries,
		Telemetry:  tel,
		Logger:     a.logger,
	})
}

func (a *app) newFaucetClient() (*faucet.Client, error) {
	httpCfg := httpclient.DefaultConfig()
	if rps := a.cfg.Faucet.RequestsPerSecond; rps > 0 {
		httpCfg.RateLimit = rate.Limit(rps)
	}
	return faucet.NewClient(faucet.Config{
		URL:    a.cfg.Faucet.URL,
		HTTP:   httpCfg,
		Logger: a.logger,
	})
}

func (a *app) loadAWSConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(a.cfg.AWS.Region)}
	if a.cfg.AWS.AccessKeyID != "" && a.cfg.AWS.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.cfg.AWS.AccessKeyID, a.cfg.AWS.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

func (a *app) s3Options() []func(*awss3.Options) {
	endpoint := a.cfg.AWS.Endpoint
	if endpoint == "" {
		return nil
	}
	return []func(*awss3.Options){func(o *awss3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}}
}

func (a *app) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.cfg.Postgres.URL == "" {
		return nil, errors.New("postgres.url is not configured")
	}
	dbCfg := postgres.DefaultPoolConfig(a.cfg.Postgres.URL)
	if a.cfg.Postgres.MaxConns > 0 {
		dbCfg.MaxConns = a.cfg.Postgres.MaxConns
	}
	return postgres.OpenPool(ctx, dbCfg, a.logger)
}

// buildServices wires the anchor service and its optional backends. Backends
// that are not configured fall back to in-memory adapters or are left out.
func (a *app) buildServices(ctx context.Context) (_ *services, err error) {
	s := &services{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.client, err = a.newNodeCoreClient(); err != nil {
		return nil, err
	}

	var cache outbound.AnchorCache = memory.NewAnchorCache()
	if a.cfg.Redis.Addr != "" {
		rc, err := redis.NewAnchorCache(redis.Config{
			Addr:      a.cfg.Redis.Addr,
			Password:  a.cfg.Redis.Password,
			DB:        a.cfg.Redis.DB,
			TTL:       a.cfg.Redis.TTL,
			KeyPrefix: a.cfg.Redis.KeyPrefix,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cache = rc
	}
	s.closers = append(s.closers, func() { _ = cache.Close() })

	var repo outbound.AnchorRepository = memory.NewAnchorRepository()
	if a.cfg.Postgres.URL != "" {
		pool, err := a.openPool(ctx)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		if repo, err = postgres.NewAnchorRepository(pool, a.logger); err != nil {
			return nil, err
		}
	}

	var sink outbound.EventSink
	needAWS := a.cfg.AWS.SNSTopicARN != "" || a.cfg.AWS.ArchiveBucket != "" || a.cfg.AWS.LookupQueueURL != ""
	if needAWS {
		awsCfg, err := a.loadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		if a.cfg.AWS.SNSTopicARN != "" {
			snsClient := awssns.NewFromConfig(awsCfg, func(o *awssns.Options) {
				if a.cfg.AWS.Endpoint != "" {
					o.BaseEndpoint = aws.String(a.cfg.AWS.Endpoint)
				}
			})
			snsSink, err := sns.NewEventSink(snsClient, sns.Config{
				TopicARN: a.cfg.AWS.SNSTopicARN,
				Logger:   a.logger,
			})
			if err != nil {
				return nil, err
			}
			sink = snsSink
			s.closers = append(s.closers, func() { _ = snsSink.Close() })
		}
		if a.cfg.AWS.ArchiveBucket != "" {
			s.archive = s3.NewWriter(awsCfg, a.logger, a.s3Options()...)
		}
		if a.cfg.AWS.LookupQueueURL != "" {
			consumer, err := sqs.NewConsumer(awsCfg, sqs.Config{
				QueueURL: a.cfg.AWS.LookupQueueURL,
				Logger:   a.logger,
			}, func(o *awssqs.Options) {
				if a.cfg.AWS.Endpoint != "" {
					o.BaseEndpoint = aws.String(a.cfg.AWS.Endpoint)
				}
			})
			if err != nil {
				return nil, err
			}
			s.queue = consumer
			s.closers = append(s.closers, func() { _ = consumer.Close() })
		}
	}

	if a.cfg.Telemetry.Enabled {
		if s.metrics, err = telemetry.NewMetrics(telemetry.DefaultServiceName); err != nil {
			return nil, err
		}
	}

	s.anchors, err = application.NewAnchorService(application.AnchorServiceConfig{
		VerifyHeaders: a.cfg.Watcher.VerifyHeaders,
		Metrics:       s.metrics,
		Logger:        a.logger,
	}, s.client, cache, repo, sink)
	if err != nil {
		return nil, err
	}
	return s, nil
}
