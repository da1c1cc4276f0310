package consumer

import (
	"testing"
)

func TestNewConsumer(t *testing.T) {
	tests := []struct {
		name    string
		brokers string
		topic   string
		groupID string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid consumer",
			brokers: "localhost:9092",
			topic:   "garuda.public.alerts",
			groupID: "alert-notifier",
			wantErr: false,
		},
		{
			name:    "empty brokers",
			brokers: "",
			topic:   "garuda.public.alerts",
			groupID: "alert-notifier",
			wantErr: true,
			errMsg:  "brokers cannot be empty",
		},
		{
			name:    "only separators",
			brokers: " , ",
			topic:   "garuda.public.alerts",
			groupID: "alert-notifier",
			wantErr: true,
			errMsg:  "brokers cannot be empty",
		},
		{
			name:    "empty topic",
			brokers: "localhost:9092",
			topic:   "",
			groupID: "alert-notifier",
			wantErr: true,
			errMsg:  "topic cannot be empty",
		},
		{
			name:    "empty groupID",
			brokers: "localhost:9092",
			topic:   "garuda.public.alerts",
			groupID: "",
			wantErr: true,
			errMsg:  "groupID cannot be empty",
		},
		{
			name:    "brokers with spaces",
			brokers: "localhost:9092, localhost:9093",
			topic:   "garuda.public.alerts",
			groupID: "alert-notifier",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConsumer(tt.brokers, tt.topic, tt.groupID)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewConsumer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && err.Error() != tt.errMsg {
				t.Errorf("NewConsumer() error = %v, want error message %v", err.Error(), tt.errMsg)
			}
			if !tt.wantErr && c != nil {
				if c.topic != tt.topic {
					t.Errorf("NewConsumer() topic = %v, want %v", c.topic, tt.topic)
				}
				c.Close()
			}
		})
	}
}
