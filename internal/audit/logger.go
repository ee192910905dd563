package audit

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	UserID        int64     `json:"user_id"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

type Logger struct {
	out *log.Logger
}

func NewLogger() *Logger {
	return &Logger{out: log.New(os.Stderr, "", log.LstdFlags)}
}

// NewLoggerTo writes audit lines to out instead of stderr.
func NewLoggerTo(out *log.Logger) *Logger {
	return &Logger{out: out}
}

// LogMovement records a successful wallet movement.
func (a *Logger) LogMovement(eventType string, transactionID, userID, amount int64, details map[string]any) {
	a.log(Event{
		EventType:     eventType,
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        amount,
		Status:        "SUCCESS",
		Details:       details,
	})
}

func (a *Logger) LogError(eventType string, userID int64, err error) {
	a.log(Event{
		EventType: eventType,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	if a == nil || a.out == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(event)
	a.out.Printf("AUDIT: %s", string(data))
}
