package notification

import (
	"context"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"gps-fleet-backend/internal/derive"
	"gps-fleet-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers delivering speed alerts to the
// channel sink and to web-push subscribers.
type WorkerPool struct {
	size    int
	jobs    chan derive.Alert
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	sink    Sink
	channel string
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, sink Sink, channel string) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan derive.Alert, size), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		sink:    sink,
		channel: channel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			log.Printf("Worker %d delivering alert for vehicle %d", id, alert.VehicleID)
			wp.deliver(ctx, alert)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends an alert to the worker pool.
func (wp *WorkerPool) Dispatch(alert derive.Alert) {
	wp.jobs <- alert
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan derive.Alert {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, alert derive.Alert) {
	if wp.sink != nil {
		if err := wp.sink.SendChannelMessage(ctx, wp.channel, alert.Text, alert.Metadata()); err != nil {
			log.Printf("Error sending channel message for vehicle %d: %v", alert.VehicleID, err)
		}
	}
	wp.sendPushNotifications(ctx, alert)
}

// sendPushNotifications fans the alert out to subscriptions watching this
// vehicle, plus fleet-wide subscriptions (those with no vehicle targets).
func (wp *WorkerPool) sendPushNotifications(ctx context.Context, alert derive.Alert) {
	if wp.db == nil {
		return
	}

	targeted := wp.db.Model(&model.SubscriptionVehicle{}).
		Select("endpoint").
		Where("vehicle_id = ?", alert.VehicleID)
	anyTarget := wp.db.Model(&model.SubscriptionVehicle{}).Select("endpoint")

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Where("endpoint IN (?)", targeted).
		Or("endpoint NOT IN (?)", anyTarget).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for vehicle %d: %v", alert.VehicleID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d push notifications for vehicle %d", len(subscriptions), alert.VehicleID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(alert.Text))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
