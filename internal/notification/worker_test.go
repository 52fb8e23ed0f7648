package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gps-fleet-backend/internal/derive"
	"gps-fleet-backend/internal/model"
)

type mockSender struct {
	mu         sync.Mutex
	sent       []string // endpoints, in delivery order
	statusFor  map[string]int
	defaultErr error
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaultErr != nil {
		return nil, m.defaultErr
	}
	m.sent = append(m.sent, sub.Endpoint)
	status := http.StatusCreated
	if s, ok := m.statusFor[sub.Endpoint]; ok {
		status = s
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func (m *mockSender) endpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type mockSink struct {
	mu       sync.Mutex
	messages []string
	metadata []map[string]any
}

func (m *mockSink) SendChannelMessage(_ context.Context, _ string, text string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	m.metadata = append(m.metadata, metadata)
	return nil
}

func newSubscriptionDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.PushSubscription{}, &model.SubscriptionVehicle{}))
	return db
}

func subscribe(t *testing.T, db *gorm.DB, endpoint string, vehicleIDs ...int64) {
	require.NoError(t, db.Create(&model.PushSubscription{
		Endpoint: endpoint,
		P256DH:   "p256dh-key",
		Auth:     "auth-key",
	}).Error)
	for _, id := range vehicleIDs {
		require.NoError(t, db.Create(&model.SubscriptionVehicle{
			Endpoint:  endpoint,
			VehicleID: id,
		}).Error)
	}
}

func testAlert(vehicleID int64) derive.Alert {
	return derive.Alert{
		VehicleID: vehicleID,
		Plate:     "AB123",
		Velocity:  110,
		MaxSpeed:  110,
		Text:      "AB123 is doing 110 km/h (limit 94 km/h), at 12:00",
		Timestamp: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
	}
}

func TestDeliver_SinkAndTargetedPush(t *testing.T) {
	db := newSubscriptionDB(t)
	subscribe(t, db, "https://push.example/watching-7", 7)
	subscribe(t, db, "https://push.example/watching-8", 8)
	subscribe(t, db, "https://push.example/fleet-wide")

	sender := &mockSender{}
	sink := &mockSink{}
	wp := NewWorkerPool(1, db, &webpush.Options{}, sink, "driver-alerts")
	wp.sender = sender

	wp.deliver(context.Background(), testAlert(7))

	require.Len(t, sink.messages, 1)
	assert.Contains(t, sink.messages[0], "110 km/h")
	assert.Equal(t, "speed_violation", sink.metadata[0]["type"])

	// The vehicle-7 watcher and the fleet-wide subscriber were notified;
	// the vehicle-8 watcher was not.
	endpoints := sender.endpoints()
	assert.ElementsMatch(t, []string{
		"https://push.example/watching-7",
		"https://push.example/fleet-wide",
	}, endpoints)
}

func TestDeliver_NilDBSkipsPush(t *testing.T) {
	sender := &mockSender{}
	sink := &mockSink{}
	wp := NewWorkerPool(1, nil, nil, sink, "driver-alerts")
	wp.sender = sender

	wp.deliver(context.Background(), testAlert(7))

	assert.Len(t, sink.messages, 1)
	assert.Empty(t, sender.endpoints())
}

func TestSendNotification_DeletesGoneSubscription(t *testing.T) {
	db := newSubscriptionDB(t)
	subscribe(t, db, "https://push.example/expired", 7)

	sender := &mockSender{statusFor: map[string]int{
		"https://push.example/expired": http.StatusGone,
	}}
	wp := NewWorkerPool(1, db, &webpush.Options{}, nil, "driver-alerts")
	wp.sender = sender

	wp.deliver(context.Background(), testAlert(7))

	var count int64
	require.NoError(t, db.Model(&model.PushSubscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestWorkerPool_DispatchDelivers(t *testing.T) {
	sink := &mockSink{}
	wp := NewWorkerPool(2, nil, nil, sink, "driver-alerts")
	wp.sender = &mockSender{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch(testAlert(1))
	wp.Dispatch(testAlert(2))

	assert.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.messages) == 2
	}, 2*time.Second, 10*time.Millisecond)
}
