package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// replayDeps: подключения к Kafka на время одного прогона.
type replayDeps struct {
	offsets  kafka.OffsetReader
	opener   kafka.PartitionOpener
	producer *kafka.Producer
	close    func()
}

var newReplayDeps = func(cfg config) (*replayDeps, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	deps := &replayDeps{
		offsets: client,
		opener:  kafka.ConsumerOpener{Consumer: consumer},
		close: func() {
			_ = consumer.Close()
			_ = client.Close()
		},
	}
	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		deps.close()
		return nil, err
	}
	closeConsumer := deps.close
	deps.producer = producer
	deps.close = func() {
		_ = producer.Close()
		closeConsumer()
	}
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := run(ctx, cfg); err != nil {
		stop()
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: MARKETPLACE_KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicMarketplaceEvents, "target topic for replay")
	fs.IntVar(&cfg.limit, "limit", 100, "max number of messages to scan/replay")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 2*time.Second, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("MARKETPLACE_KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or MARKETPLACE_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, fmt.Errorf("target-topic is required")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) (kafka.ReplayStats, error) {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	deps, err := newReplayDeps(cfg)
	if err != nil {
		return kafka.ReplayStats{}, err
	}
	defer deps.close()

	replayer := kafka.NewReplayer(deps.offsets, deps.opener, kafka.ReplayOptions{
		SourceTopic: cfg.sourceTopic,
		TargetTopic: cfg.targetTopic,
		Limit:       cfg.limit,
		FromNewest:  cfg.fromNewest,
		IdleTimeout: cfg.idleTimeout,
		Producer:    deps.producer,
	})
	return replayer.Run(ctx)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
