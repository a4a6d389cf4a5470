package app

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/dborovsky/grandnode/internal/domain"
	"github.com/dborovsky/grandnode/internal/messaging/kafka"
	redisstore "github.com/dborovsky/grandnode/internal/storage/redis"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	if brokers == "" {
		return nil, nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// startGiftCardCacheInvalidator подписывается на события подарочных карт
// и сбрасывает кешированные записи: после применения или снятия карты
// следующее чтение должно увидеть свежий остаток.
func startGiftCardCacheInvalidator(ctx context.Context, cfg Config, cache *redisstore.GiftCardCache, logger *log.Entry) (*kafka.Consumer, error) {
	brokerList := strings.Split(cfg.KafkaBrokers, ",")

	handler := giftCardInvalidationHandler(cache.Invalidate, logger)
	consumer, err := kafka.NewConsumer(brokerList, cfg.KafkaConsumerGroup, []string{kafka.TopicGiftCardEvents}, handler)
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return nil, err
	}

	logger.WithField("topic", kafka.TopicGiftCardEvents).Info("gift card cache invalidator started")
	return consumer, nil
}

// giftCardInvalidationHandler разбирает событие подарочной карты и
// сбрасывает её из кеша. Битые сообщения пропускаются, чтобы не
// загонять консьюмер в retry.
func giftCardInvalidationHandler(invalidate func(domain.GiftCard), logger *log.Entry) func(context.Context, *sarama.ConsumerMessage) error {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseGiftCardEvent(message)
		if err != nil {
			logger.WithError(err).Warn("skipping malformed gift card event")
			return nil
		}
		invalidate(domain.GiftCard{ID: event.GiftCardID, Code: event.Code})
		return nil
	}
}
